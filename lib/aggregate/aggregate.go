package aggregate

import (
	"crypto/md5"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"mortar/lib/model"
)

// VersionName is the version name shown by the composite status
const VersionName = "mortar"

// description is the composite status motd
var description = []interface{}{
	"",
	model.ChatComponent{Text: "Mortar", Bold: true, Color: "aqua"},
	model.ChatComponent{Text: " 全服在线人数统计", Bold: true, Color: "gold"},
	model.ChatComponent{Text: "\n这是你永远也不能到达的境地……", Italic: true, Underlined: true, Color: "gray"},
}

// Compose builds the composite status document from the backend documents.
//
// Every player sampled by a backend is listed once, renamed "<name> -- <backend version>".
// Backends without a version name or a player sample are skipped.
// Max and online players are the length of the resulting sample.
func Compose(docs []*model.StatusDocument, protocol int32, favicon string) *model.StatusDocument {
	sample := []model.PlayerSample{}
	for _, doc := range docs {
		if doc == nil || doc.Version.Name == "" {
			continue
		}
		for _, p := range doc.Players.Sample {
			id := p.ID
			if id == "" {
				id = OfflineUUID(p.Name)
			}
			sample = append(sample, model.PlayerSample{
				Name: fmt.Sprintf("%s -- %s", p.Name, doc.Version.Name),
				ID:   id,
			})
		}
	}

	desc, _ := json.Marshal(description)

	return &model.StatusDocument{
		Version: model.StatusVersion{Name: VersionName, Protocol: protocol},
		Players: model.StatusPlayers{
			Max:    len(sample),
			Online: len(sample),
			Sample: sample,
		},
		Description:        desc,
		Favicon:            favicon,
		EnforcesSecureChat: true,
	}
}

// OfflineUUID returns the uuid an offline mode server assigns to player name
// (name based uuid v3 without namespace of "OfflinePlayer:<name>")
func OfflineUUID(name string) string {
	id := uuid.UUID(md5.Sum([]byte("OfflinePlayer:" + name)))
	id[6] = (id[6] & 0x0f) | 0x30 // version 3
	id[8] = (id[8] & 0x3f) | 0x80 // RFC 4122 variant
	return id.String()
}
