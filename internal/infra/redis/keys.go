package redis

import "strconv"

type keyspace struct {
	prefix string
}

func (k keyspace) job(id string) string { return k.prefix + "job:" + id }

func (k keyspace) unit(id string, index int) string {
	return k.prefix + "unit:" + id + ":" + strconv.Itoa(index)
}

func (k keyspace) queue(name string) string { return k.prefix + "queue:" + name }

func (k keyspace) chunks(id string, index int) string {
	return k.prefix + "chunks:" + id + ":" + strconv.Itoa(index)
}

func (k keyspace) active() string { return k.prefix + "jobs:active" }

func (k keyspace) lock(name string) string { return k.prefix + "lock:" + name }

func (k keyspace) rate(scope, subject string) string {
	return k.prefix + "rate_limit:" + scope + ":" + subject
}

func chunkField(chunk int) string   { return strconv.Itoa(chunk) }
func partialField(chunk int) string { return strconv.Itoa(chunk) + ":partial" }
