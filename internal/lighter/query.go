package lighter

import (
	"net/url"
	"strconv"
)

type query struct {
	values url.Values
}

func newQuery() *query {
	return &query{values: url.Values{}}
}

func (q *query) set(key, value string) *query {
	q.values.Set(key, value)
	return q
}

func (q *query) setInt(key string, value int) *query {
	return q.set(key, strconv.Itoa(value))
}

func (q *query) setInt64(key string, value int64) *query {
	return q.set(key, strconv.FormatInt(value, 10))
}
