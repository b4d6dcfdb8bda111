package hooks

import "github.com/szaher/agentbus/internal/agent"

// payloadKeys maps the payload fields we keep onto agent metadata keys.
var payloadKeys = map[string]agent.MetadataKey{
	"cwd":             agent.MetaCWD,
	"model":           agent.MetaModel,
	"transcript_path": agent.MetaTranscriptPath,
	"session_id":      agent.MetaSessionID,
}

// ExtractMetadata copies the allow-listed keys with non-empty string values
// from payload. Unknown keys and non-string values are ignored.
func ExtractMetadata(payload map[string]any) map[agent.MetadataKey]string {
	out := make(map[agent.MetadataKey]string)
	for field, key := range payloadKeys {
		s, ok := payload[field].(string)
		if !ok || s == "" {
			continue
		}
		out[key] = s
	}
	return out
}

func mergeMetadata(a *agent.Agent, meta map[agent.MetadataKey]string) {
	if len(meta) == 0 {
		return
	}
	if a.Metadata == nil {
		a.Metadata = make(map[agent.MetadataKey]string, len(meta))
	}
	for k, v := range meta {
		a.Metadata[k] = v
	}
}
