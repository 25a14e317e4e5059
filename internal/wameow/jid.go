package wameow

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"github.com/openclaw/wa-bridge/internal/domain"
)

// The HTTP surface and the stored history speak the legacy "@c.us"/"@g.us"
// address format. The transport speaks server JIDs ("@s.whatsapp.net").
// These two helpers are the only place the mapping happens.

func apiID(j types.JID) string {
	j = j.ToNonAD()
	switch j.Server {
	case types.DefaultUserServer:
		return j.User + domain.SuffixIndividual
	case types.GroupServer:
		return j.User + domain.SuffixGroup
	default:
		return j.String()
	}
}

func wireJID(id string) (types.JID, error) {
	switch {
	case strings.HasSuffix(id, domain.SuffixIndividual):
		return types.NewJID(strings.TrimSuffix(id, domain.SuffixIndividual), types.DefaultUserServer), nil
	case strings.HasSuffix(id, domain.SuffixGroup):
		return types.NewJID(strings.TrimSuffix(id, domain.SuffixGroup), types.GroupServer), nil
	}
	j, err := types.ParseJID(id)
	if err != nil || j.User == "" {
		return types.JID{}, fmt.Errorf("invalid chat id %q", id)
	}
	return j, nil
}

// serializeID builds the external message identifier
// <fromMe>_<chatID>_<messageID>.
func serializeID(fromMe bool, chatID, messageID string) string {
	return fmt.Sprintf("%t_%s_%s", fromMe, chatID, messageID)
}
