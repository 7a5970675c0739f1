package util

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// GetEnv 读取环境变量，未设置时返回默认值
func GetEnv(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// GetEnvAsInt 读取整数环境变量，无法解析时返回默认值
func GetEnvAsInt(key string, defaultVal int) int {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := cast.ToIntE(strVal)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Invalid integer env value, using default")
		return defaultVal
	}
	return val
}

// GetEnvAsBool 读取布尔环境变量
func GetEnvAsBool(key string, defaultVal bool) bool {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := cast.ToBoolE(strVal)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Invalid bool env value, using default")
		return defaultVal
	}
	return val
}

// GetEnvAsDuration 读取时长环境变量，如 "15s"、"6m"
func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := cast.ToDurationE(strVal)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Invalid duration env value, using default")
		return defaultVal
	}
	return val
}

// GetEnvAsStringArr 读取逗号分隔的列表
func GetEnvAsStringArr(key string, defaultVal []string, separator ...string) []string {
	strVal := GetEnv(key, "")
	if len(strVal) == 0 {
		return defaultVal
	}
	sep := ","
	if len(separator) >= 1 {
		sep = separator[0]
	}
	var out []string
	for _, s := range strings.Split(strVal, sep) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
