package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Storage
	// Snapshots go to <StorageRoot>/recordings/images/<camera>,
	// segments to <StorageRoot>/recordings/videos/<camera>
	StorageRoot  string
	DatabaseFile string

	// Frame source
	ReconnectInterval  time.Duration
	DetectionQueueSize int
	RecordingQueueSize int
	QueuePollTimeout   time.Duration
	FPSWindow          int

	// Lifecycle
	JoinTimeout     time.Duration
	ShutdownTimeout time.Duration
	Autostart       bool

	// Recording
	SegmentMaxDuration time.Duration
	RecordingFPS       float64
	RecordingCodec     string
	DefaultFrameWidth  int
	DefaultFrameHeight int

	// Detection
	SnapshotQuality    int
	DefaultConfidence  float64
	DefaultModelPath   string
	DefaultModelConfig string
	DefaultModelLabels string
	DNNInputSize       int
	AIGRPCURL          string
	AITimeout          time.Duration

	// NATS
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration

	// MQTT
	MQTTEnabled     bool
	MQTTHost        string
	MQTTPort        int
	MQTTUsername    string
	MQTTPassword    string
	MQTTClientID    string
	MQTTTopicPrefix string

	// MinIO snapshot mirror
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string

	// Live view
	MJPEGQuality  int
	MJPEGInterval time.Duration

	// Swagger Configuration
	SwaggerHost string
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	storageRoot := getEnv("STORAGE_ROOT", "storage")

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "worker-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Storage
		StorageRoot:  storageRoot,
		DatabaseFile: getEnv("DATABASE_FILE", filepath.Join(storageRoot, "nvr.db")),

		// Frame source
		ReconnectInterval:  getEnvDuration("RECONNECT_INTERVAL", 2*time.Second),
		DetectionQueueSize: getEnvInt("DETECTION_QUEUE_SIZE", 10),
		RecordingQueueSize: getEnvInt("RECORDING_QUEUE_SIZE", 30),
		QueuePollTimeout:   getEnvDuration("QUEUE_POLL_TIMEOUT", 1*time.Second),
		FPSWindow:          getEnvInt("FPS_WINDOW", 30),

		// Lifecycle
		JoinTimeout:     getEnvDuration("JOIN_TIMEOUT", 5*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		Autostart:       getEnvBool("AUTOSTART", true),

		// Recording
		SegmentMaxDuration: getEnvDuration("SEGMENT_MAX_DURATION", time.Hour),
		RecordingFPS:       getEnvFloat("RECORDING_FPS", 20),
		RecordingCodec:     getEnv("RECORDING_CODEC", "mp4v"),
		DefaultFrameWidth:  getEnvInt("DEFAULT_FRAME_WIDTH", 1280),
		DefaultFrameHeight: getEnvInt("DEFAULT_FRAME_HEIGHT", 720),

		// Detection
		SnapshotQuality:    getEnvInt("SNAPSHOT_QUALITY", 95),
		DefaultConfidence:  getEnvFloat("DEFAULT_CONFIDENCE", 0.5),
		DefaultModelPath:   getEnv("DEFAULT_MODEL_PATH", filepath.Join("models", "ssd_mobilenet_v2.pb")),
		DefaultModelConfig: getEnv("DEFAULT_MODEL_CONFIG", ""),
		DefaultModelLabels: getEnv("DEFAULT_MODEL_LABELS", ""),
		DNNInputSize:       getEnvInt("DNN_INPUT_SIZE", 300),
		AIGRPCURL:          getEnv("AI_GRPC_URL", ""),
		AITimeout:          getEnvDuration("AI_TIMEOUT", 5*time.Second),

		// NATS (configured for Docker Compose setup)
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),

		// MQTT
		MQTTEnabled:     getEnvBool("MQTT_ENABLED", false),
		MQTTHost:        getEnv("MQTT_HOST", "localhost"),
		MQTTPort:        getEnvInt("MQTT_PORT", 1883),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "nvr-worker"),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "nvr"),

		// MinIO
		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "nvr-snapshots"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioPublicURL: os.Getenv("MINIO_PUBLIC_BASE_URL"),

		// Live view
		MJPEGQuality:  getEnvInt("MJPEG_QUALITY", 80),
		MJPEGInterval: getEnvDuration("MJPEG_INTERVAL", 66*time.Millisecond),

		// Swagger
		SwaggerHost: getEnv("SWAGGER_HOST", "localhost:8000"),
	}
}

// ImagesDir is the snapshot root for one camera
func (c *Config) ImagesDir(cameraID string) string {
	return filepath.Join(c.StorageRoot, "recordings", "images", cameraID)
}

// VideosDir is the segment root for one camera
func (c *Config) VideosDir(cameraID string) string {
	return filepath.Join(c.StorageRoot, "recordings", "videos", cameraID)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
