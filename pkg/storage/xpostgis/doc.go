// Package xpostgis 提供基于 PostgreSQL + PostGIS 的 PrimaryStore 绑定。
//
// 表结构（表名经 pq.QuoteIdentifier 引用）：
//
//	CREATE TABLE places (
//	    id         text PRIMARY KEY,
//	    location   geography(Point, 4326) NOT NULL,
//	    kind       text NOT NULL DEFAULT '',
//	    attrs      jsonb NOT NULL DEFAULT '{}',
//	    props      jsonb NOT NULL DEFAULT '{}',
//	    updated_at timestamptz NOT NULL
//	);
//
// RadiusQuery 使用参数化的 ST_DWithin 圈定候选，按 ST_Distance 与 id 排序。
// 等值条件比较 attrs-><name> 与 jsonb 参数，范围条件要求 jsonb 数值类型后比较
// (attrs->><name>)::float8。属性名来自已校验的 Schema，以字面量内联，
// 使 EnsureSchema 创建的表达式索引可被使用。
//
// 错误分类：SQLSTATE 22 类（数据异常）与 42 类（语法或访问规则）包装
// xgeo.ErrInvalidQuery，但 42P01（表不存在）与 42883（函数不存在，通常是未安装
// PostGIS）属于部署问题，与连接错误一起包装 xgeo.ErrPrimaryUnavailable。
//
// 使用前需导入驱动：
//
//	db, err := sql.Open("postgres", dsn)
//	store, err := xpostgis.New(db, xpostgis.WithTable("places"), xpostgis.WithSchema(schema))
package xpostgis
