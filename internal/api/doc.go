// Package api 通过 REST 接口暴露链上视图、动作提交、媒体上传与会话状态。
package api
