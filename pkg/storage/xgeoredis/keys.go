package xgeoredis

import "github.com/omeyang/xgeo/pkg/geo/xgeo"

type keyspace struct {
	prefix string
}

func (k keyspace) geo() string { return k.prefix + ":geo" }

func (k keyspace) entity(id string) string { return k.prefix + ":ent:" + id }

func (k keyspace) members(id string) string { return k.prefix + ":mem:" + id }

// attr 返回等值属性倒排集合的键。值的类型参与编码，"1" 与 1 与 true 互不冲突。
func (k keyspace) attr(name string, v xgeo.Value) string {
	return k.prefix + ":attr:" + name + ":" + v.Kind().String() + ":" + v.String()
}
