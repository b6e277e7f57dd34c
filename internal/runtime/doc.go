// Package runtime 定义了对目标容器编排平台的统一访问接口。
//
// 子包 kubernetes 通过 apiserver 的 REST 接口操作命名空间下的
// 自定义资源与工作负载；子包 memory 提供纯内存实现，用于测试与
// 本地开发。两种实现通过构造期注入选择，上层组件只依赖 Client 接口。
package runtime
