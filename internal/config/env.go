package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	// Comma-separated list of origins allowed to call the HTTP API.
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:3001"`
}

type AgentEnv struct {
	Engine        string        `envconfig:"AGENT_ENGINE" default:"simulated"`
	Model         string        `envconfig:"AGENT_MODEL" default:"gpt-4o-mini"`
	Temperature   float64       `envconfig:"AGENT_TEMPERATURE" default:"0.7"`
	ProgressDelay time.Duration `envconfig:"AGENT_PROGRESS_DELAY" default:"500ms"`
	// Maximum wall-clock time for a single task. Zero means no limit.
	Timeout       time.Duration `envconfig:"AGENT_TIMEOUT" default:"0"`
	Sender        string        `envconfig:"AGENT_SENDER" default:"Agent"`
	WorkDir       string        `envconfig:"AGENT_WORK_DIR"`
	OpenAIAPIKey  string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `envconfig:"OPENAI_BASE_URL"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".agentdeck/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"agentdeck/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type VAPIDEnv struct {
	PublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	Subscriber string `envconfig:"VAPID_SUBSCRIBER" default:"mailto:admin@agentdeck.local"`
}

type Env struct {
	BaseEnv
	AgentEnv
	StorageEnv
	VAPIDEnv
}

const namespace = "AGENTDECK"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

// SlogLevel parses LogLevel, falling back to debug on anything it does
// not recognize.
func (e *BaseEnv) SlogLevel() slog.Level {
	var level slog.Level
	if e == nil || level.UnmarshalText([]byte(e.LogLevel)) != nil {
		return slog.LevelDebug
	}
	return level
}

func (e *BaseEnv) CORSOriginList() []string {
	var origins []string
	for _, origin := range strings.Split(e.CORSOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}

// The FromEnv accessors hand out section pointers so constructors
// depend only on the settings they actually read.

func BaseEnvFromEnv(env *Env) *BaseEnv { return &env.BaseEnv }

func AgentEnvFromEnv(env *Env) *AgentEnv { return &env.AgentEnv }

func StorageEnvFromEnv(env *Env) *StorageEnv { return &env.StorageEnv }

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv { return &env.VAPIDEnv }
