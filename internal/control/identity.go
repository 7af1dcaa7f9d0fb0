// ABOUTME: Bot identity updates: username, avatar, and nickname resets
// ABOUTME: Fetches remote avatars and encodes them as data URIs for the API

package control

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vanidev/guildgate/internal/store"
)

// ErrRateLimited is returned when the platform refuses an identity change
// because it was changed too recently.
var ErrRateLimited = errors.New("identity change rate limited")

// maxAvatarBytes bounds the avatar download.
const maxAvatarBytes = 8 << 20

var avatarClient = &http.Client{Timeout: 15 * time.Second}

// IdentityUpdate describes a requested identity change. Empty fields are
// left untouched.
type IdentityUpdate struct {
	Username      string `json:"username,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	SyncNicknames bool   `json:"syncNicknames,omitempty"`
}

// UpdateIdentity applies an identity change and returns a summary of what
// changed. Username changes are rate limited by the platform; that case
// maps to ErrRateLimited rather than a generic failure.
func (svc *Service) UpdateIdentity(ctx context.Context, req IdentityUpdate) (string, error) {
	s, err := svc.session()
	if err != nil {
		return "", err
	}
	if req.Username == "" && req.AvatarURL == "" && !req.SyncNicknames {
		return "", fmt.Errorf("%w: nothing to update", ErrValidation)
	}

	var changed []string

	if req.Username != "" || req.AvatarURL != "" {
		avatar := ""
		if req.AvatarURL != "" {
			avatar, err = fetchAvatarDataURI(ctx, req.AvatarURL)
			if err != nil {
				return "", fmt.Errorf("fetching avatar: %w", err)
			}
		}
		if _, err := s.UserUpdate(req.Username, avatar, discordgo.WithContext(ctx)); err != nil {
			var rl *discordgo.RateLimitError
			if errors.As(err, &rl) {
				svc.audit(ctx, store.AuditIdentity, "Identity change rejected: rate limited", store.SeverityError)
				return "", fmt.Errorf("%w: retry after %s", ErrRateLimited, rl.RetryAfter)
			}
			svc.audit(ctx, store.AuditIdentity, fmt.Sprintf("Identity change failed: %v", err), store.SeverityError)
			return "", fmt.Errorf("updating identity: %w", err)
		}
		if req.Username != "" {
			changed = append(changed, fmt.Sprintf("username to %s", req.Username))
		}
		if req.AvatarURL != "" {
			changed = append(changed, "avatar")
		}
	}

	if req.SyncNicknames {
		reset := svc.resetNicknames(ctx, s)
		changed = append(changed, fmt.Sprintf("nicknames reset in %d guilds", reset))
	}

	summary := "Updated " + strings.Join(changed, ", ")
	svc.audit(ctx, store.AuditIdentity, summary, store.SeveritySuccess)
	return summary, nil
}

// resetNicknames clears the bot's per-guild nickname so the new username
// shows everywhere. Guild failures are logged and skipped.
func (svc *Service) resetNicknames(ctx context.Context, s *discordgo.Session) int {
	reset := 0
	for _, g := range s.State.Guilds {
		if err := s.GuildMemberNickname(g.ID, "@me", "", discordgo.WithContext(ctx)); err != nil {
			svc.logger.Warn("resetting nickname", "guild", g.ID, "error", err)
			continue
		}
		reset++
	}
	return reset
}

// fetchAvatarDataURI downloads an image and encodes it as the data URI
// form the identity endpoint expects.
func fetchAvatarDataURI(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := avatarClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes))
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", errors.New("empty image body")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(body)
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(body)), nil
}
