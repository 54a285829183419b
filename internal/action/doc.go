// Package action 实现链上变更操作（创建项目、创建投票、加入项目、投票）的
// 状态机：请求先持久化并入队，再由处理器依次完成本地校验、模拟、编码与提交，
// 每一次状态迁移都会写回存储。失败的动作不会被自动重试。
package action
