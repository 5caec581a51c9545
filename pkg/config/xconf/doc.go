// Package xconf 加载 xgeo 的文件配置，基于 koanf 实现。
//
// # 格式
//
//   - YAML（默认，推荐）：.yaml, .yml
//   - JSON：.json
//
// 文件经 rawbytes provider 读入 koanf，再以 koanf 标签反序列化到 Config。
// 时长字段接受 "30s"、"1h" 等写法。
//
// # 默认值与校验
//
// 反序列化的目标是 Default() 的副本，文件中未出现的键保留默认值。
// 加载完成后调用 Validate，所有问题合并为一个 ErrInvalidConfig 错误返回。
//
//	cfg, err := xconf.Load("/etc/xgeo/config.yaml")
//	if err != nil {
//	    return err
//	}
//	schema, err := cfg.Schema()
//
// # 配置监视
//
// Watch 监视配置文件所在目录（兼容 vim/emacs 的 rename 式写入），内置防抖。
// 每次变更重新 Load，结果交给回调；校验失败时回调收到错误，调用方应保留旧配置。
// Stop() 之后不再触发新的重载，在回调中调用 Stop() 不会死锁。
package xconf
