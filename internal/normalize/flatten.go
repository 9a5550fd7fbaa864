package normalize

// nestedContainers are the envelope keys vendors use to nest the same
// fields at different depths. Merge precedence is list order: a key in
// a later container overwrites the same key from an earlier one, and
// all containers overwrite the top level.
var nestedContainers = []string{
	"data",
	"payload",
	"token",
	"tokenInfo",
	"token_info",
	"coin",
	"metadata",
	"params",
}

// Flatten merges the top-level payload with the well-known nested
// containers into a single flat field pool. Only one level of nesting
// is unwrapped; container values that are not objects are kept as
// regular fields.
func Flatten(payload map[string]any) map[string]any {
	flat := make(map[string]any, len(payload))
	for k, v := range payload {
		flat[k] = v
	}

	for _, container := range nestedContainers {
		nested, ok := payload[container].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range nested {
			flat[k] = v
		}
	}
	return flat
}
