package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadDotEnv 将 .env 文件中的变量加载到进程环境，不覆盖已有变量。
// 未指定文件时尝试当前目录下的 .env，文件不存在不视为错误。
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("加载环境文件 %s 失败: %w", file, err)
		}
	}
	return nil
}

// applyEnv 使用 PARRYQV_ 前缀的环境变量覆盖配置文件中的值。
func applyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("解析环境变量失败: %w", err)
	}
	return nil
}
