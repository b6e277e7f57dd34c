// Package config 负责加载并校验 AgentCraft 守护进程的启动配置。
//
// 配置采用 JSON 文件描述，覆盖 API 服务、运行时接入、任务队列、
// 工具目录发现以及日志输出等核心子系统。未填写的字段会在加载阶段
// 被填充为安全的默认值。
package config
