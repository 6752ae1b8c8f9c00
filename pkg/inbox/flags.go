package inbox

import (
	"time"

	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/models"
)

const (
	FlagArchived         = "archived"
	FlagArchivedUntilNew = "archivedUntilNew"
	FlagPinned           = "pinned"
	FlagMuted            = "muted"
	FlagHistoryCutoffAt  = "historyCutoffAt"
)

// ParseFlagPatch keeps the whitelisted keys of patch and drops everything else.
// A whitelisted key with the wrong type is an InvalidOperation.
func ParseFlagPatch(patch map[string]any) (models.InboxFlags, error) {
	var flags models.InboxFlags

	for key, raw := range patch {
		switch key {
		case FlagArchived:
			v, err := boolFlag(key, raw)
			if err != nil {
				return models.InboxFlags{}, err
			}
			flags.Archived = v
		case FlagArchivedUntilNew:
			v, err := boolFlag(key, raw)
			if err != nil {
				return models.InboxFlags{}, err
			}
			flags.ArchivedUntilNew = v
		case FlagPinned:
			v, err := boolFlag(key, raw)
			if err != nil {
				return models.InboxFlags{}, err
			}
			flags.Pinned = v
		case FlagMuted:
			v, err := boolFlag(key, raw)
			if err != nil {
				return models.InboxFlags{}, err
			}
			flags.Muted = v
		case FlagHistoryCutoffAt:
			cutoff, err := timeFlag(key, raw)
			if err != nil {
				return models.InboxFlags{}, err
			}
			flags.HistoryCutoffAt = cutoff
			flags.SetHistoryCutoff = true
		}
	}

	return flags, nil
}

func boolFlag(key string, raw any) (*bool, error) {
	v, ok := raw.(bool)
	if !ok {
		return nil, engine.InvalidOperation("%s must be a boolean", key)
	}
	return &v, nil
}

// timeFlag accepts null (clears the cutoff), an RFC 3339 string or a time.Time.
func timeFlag(key string, raw any) (*time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, engine.InvalidOperation("%s must be an RFC 3339 timestamp", key)
		}
		return &t, nil
	default:
		return nil, engine.InvalidOperation("%s must be a timestamp or null", key)
	}
}

func boolPtr(v bool) *bool {
	return &v
}
