// Package storageopt 提供地理存储绑定共享的配置选项与工具函数。
//
// 本包是 internal 包，仅供 pkg/storage 下的 PrimaryStore 绑定（xgeomongo、xpostgis）
// 与 xguard 装饰器使用。
//
// 主要功能：
//   - 查询与健康检查的兜底超时
//   - 慢查询检测器（支持同步/异步钩子）
//   - 原子统计计数器
//   - 后端错误到 xgeo 错误分类的统一包装
package storageopt
