package storage

import "os"

// Mode selects the state change journal backend
type Mode string

const (
	ModeNone        Mode = "none"
	ModeSQLite      Mode = "sqlite"
	ModeDynamoLocal Mode = "dynamo-local"
	ModeDynamoAWS   Mode = "dynamo-aws"
)

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal DynamoMode = "local"
	DynamoModeAWS   DynamoMode = "aws"
)

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode              DynamoMode
	Endpoint          string // for local mode
	Region            string
	StateChangesTable string
}

// Config holds journal store configuration
type Config struct {
	Mode       Mode
	SQLitePath string
	Dynamo     DynamoConfig
}

// LoadConfig loads store config from environment
func LoadConfig() Config {
	mode := Mode(getEnv("STORE_MODE", string(ModeNone)))
	switch mode {
	case ModeSQLite, ModeDynamoLocal, ModeDynamoAWS:
	default:
		mode = ModeNone
	}

	dynamoMode := DynamoModeAWS
	if mode == ModeDynamoLocal {
		dynamoMode = DynamoModeLocal
	}

	return Config{
		Mode:       mode,
		SQLitePath: getEnv("SQLITE_PATH", "data/ctmbridge.db"),
		Dynamo: DynamoConfig{
			Mode:              dynamoMode,
			Endpoint:          getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
			Region:            getEnv("DYNAMO_REGION", "eu-central-1"),
			StateChangesTable: getEnv("DYNAMO_STATE_CHANGES_TABLE", "ctmbridge-agent-state-changes"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
