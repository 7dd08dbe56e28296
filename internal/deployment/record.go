package deployment

import "time"

// CurrentConfigVersion is the schema version written to new records. Legacy
// directory-layout records predate versioning and load as version 0.
const CurrentConfigVersion = 1

// Operational configuration keys a deployment needs to address its stack's
// resources.
const (
	EnvProcessQueueURL = "NIMBUS_PROCESS_QUEUE_URL"
	EnvPayloadBucket   = "NIMBUS_PAYLOAD_BUCKET"
	EnvStateTable      = "NIMBUS_STATE_TABLE"
)

// Record is the persisted form of a deployment: the binding between a
// logical environment name and a remote stack's resolved operational
// configuration.
type Record struct {
	Name          string            `json:"name"`
	Created       time.Time         `json:"created"`
	Updated       time.Time         `json:"updated"`
	Stackname     string            `json:"stackname"`
	Profile       string            `json:"profile,omitempty"`
	Environment   map[string]string `json:"environment"`
	UserVars      map[string]string `json:"user_vars"`
	ConfigVersion int               `json:"config_version"`
}
