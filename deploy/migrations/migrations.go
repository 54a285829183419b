package migrations

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// Files 暴露所有 SQL 迁移文件，文件名形如 0001_qv_actions.sql。
//
//go:embed *.sql
var Files embed.FS

// Migration 描述一个按版本号排序的迁移脚本。
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Load 读取内嵌脚本并按版本号升序返回，版本号重复或无法解析时报错。
func Load() ([]Migration, error) {
	return load(Files)
}

func load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}
	seen := make(map[int]string, len(entries))
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()
		version, err := ParseVersion(name)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移版本 %d 重复: %s 与 %s", version, other, name)
		}
		seen[version] = name
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		sum := sha256.Sum256(content)
		out = append(out, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ParseVersion 取文件名中第一个下划线或点号之前的数字作为版本号。
func ParseVersion(name string) (int, error) {
	prefix := name
	if idx := strings.IndexAny(name, "_."); idx > 0 {
		prefix = name[:idx]
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("迁移文件名 %s 缺少正整数版本号", name)
	}
	return version, nil
}
