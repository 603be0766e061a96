package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	WebSocket WebSocketConfig `yaml:"websocket"`

	Game struct {
		RoomIDLength     int  `yaml:"room_id_length"`
		InviteCodeLength int  `yaml:"invite_code_length"`
		StrictMoves      bool `yaml:"strict_moves"` // 拒絕 rock/paper/scissors 以外的出拳
	} `yaml:"game"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// WebSocketConfig 連接層參數
//
// PingPeriod 必須小於 PongWait：在對方判定逾時前送出下一個 Ping。
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	SendBufferSize  int           `yaml:"send_buffer_size"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	PingPeriod      time.Duration `yaml:"ping_period"`
	PongWait        time.Duration `yaml:"pong_wait"`
	WriteWait       time.Duration `yaml:"write_wait"`
	StrictMoves     bool          `yaml:"-"`
}

// DefaultConfig 預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.WebSocket = WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		MaxMessageSize:  4096,
		PingPeriod:      54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
	}

	cfg.Game.RoomIDLength = defaultRoomIDLength
	cfg.Game.InviteCodeLength = defaultInviteCodeLength

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 以預設值為底載入 YAML 配置檔；path 為空時只返回預設值
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 - path 來自命令行參數
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv 以環境變數覆蓋配置
//
// 若工作目錄有 .env 會先載入（不覆蓋已存在的環境變數）。
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if v := os.Getenv("RPS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse RPS_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("RPS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RPS_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("RPS_STRICT_MOVES"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse RPS_STRICT_MOVES: %w", err)
		}
		c.Game.StrictMoves = strict
	}

	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Game.RoomIDLength < 4 {
		return fmt.Errorf("room_id_length must be at least 4, got %d", c.Game.RoomIDLength)
	}
	if c.Game.InviteCodeLength < 1 {
		return fmt.Errorf("invite_code_length must be positive, got %d", c.Game.InviteCodeLength)
	}
	if c.WebSocket.SendBufferSize < 1 {
		return fmt.Errorf("send_buffer_size must be positive, got %d", c.WebSocket.SendBufferSize)
	}
	if c.WebSocket.PingPeriod <= 0 || c.WebSocket.WriteWait <= 0 {
		return fmt.Errorf("ping_period and write_wait must be positive")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)",
			c.WebSocket.PingPeriod, c.WebSocket.PongWait)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	return nil
}

// HubConfig 傳輸層實際使用的參數（合併 game.strict_moves）
func (c *Config) HubConfig() WebSocketConfig {
	ws := c.WebSocket
	ws.StrictMoves = c.Game.StrictMoves
	return ws
}
