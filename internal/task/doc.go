// Package task 实现异步任务子系统：任务一经提交立即返回，由队列
// 消费协程驱动执行。状态机为 created -> running -> completed|failed，
// 终态不可变更；执行失败只体现在任务记录上，不会向队列传播。
package task
