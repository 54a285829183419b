// Package config 负责加载网关的启动配置：JSON 配置文件、.env 文件与
// PARRYQV_ 前缀的环境变量依次叠加，网络部署信息来自 YAML 文件。
package config
