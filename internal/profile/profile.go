// Package profile looks up public profile details (nickname, avatar) by
// fetching a profile page and extracting the JSON blob the page embeds
// for hydration. Two embedding formats exist in the wild; both are
// tried in order.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://www.tiktok.com"
	maxBodyBytes   = 4 << 20

	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

var (
	sigiStateRe     = regexp.MustCompile(`(?s)<script[^>]*id="SIGI_STATE"[^>]*type="application/json"[^>]*>(.*?)</script>`)
	universalDataRe = regexp.MustCompile(`(?s)<script[^>]*id="__UNIVERSAL_DATA_FOR_REHYDRATION__"[^>]*type="application/json"[^>]*>(.*?)</script>`)
	blockedRe       = regexp.MustCompile(`(?i)verify|captcha|blocked|Access Denied|enable javascript`)
)

// Profile is the extracted public identity.
type Profile struct {
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// NotFoundError carries the diagnostic detail surfaced to the caller
// when a page came back without usable embedded JSON.
type NotFoundError struct {
	Status  int
	Blocked bool
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("profile not found (status %d, blocked %v)", e.Status, e.Blocked)
}

// Hint suggests a remedy based on how the fetch failed.
func (e *NotFoundError) Hint() string {
	if e.Blocked {
		return "The upstream site likely blocked this server's IP. Use a scraping proxy for reliable results."
	}
	return "The page contained no embedded profile JSON (format changed or restricted)."
}

// Service fetches profile pages.
type Service struct {
	client  *http.Client
	baseURL string
}

func NewService() *Service {
	return &Service{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
}

// Lookup fetches the public page for the given username and extracts
// the profile. The username is normalized: trimmed, leading @ stripped,
// lowercased.
func (s *Service) Lookup(username string) (*Profile, error) {
	username = strings.ToLower(strings.TrimLeft(strings.TrimSpace(username), "@"))
	if username == "" {
		return nil, errors.New("missing username")
	}

	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/@"+url.PathEscape(username), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", s.baseURL+"/")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read profile page: %w", err)
	}
	html := string(body)

	if p := extractSigiState(html, username); p != nil {
		return p, nil
	}
	if p := extractUniversalData(html, username); p != nil {
		return p, nil
	}

	blocked := resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusTooManyRequests ||
		blockedRe.MatchString(html)
	return nil, &NotFoundError{Status: resp.StatusCode, Blocked: blocked}
}

func extractSigiState(html, username string) *Profile {
	m := sigiStateRe.FindStringSubmatch(html)
	if m == nil {
		return nil
	}

	var data struct {
		UserModule struct {
			Users map[string]struct {
				Nickname     string `json:"nickname"`
				AvatarLarger string `json:"avatarLarger"`
				AvatarThumb  string `json:"avatarThumb"`
			} `json:"users"`
		} `json:"UserModule"`
	}
	if err := json.Unmarshal([]byte(m[1]), &data); err != nil {
		return nil
	}

	for _, u := range data.UserModule.Users {
		if u.Nickname == "" {
			continue
		}
		avatar := u.AvatarLarger
		if avatar == "" {
			avatar = u.AvatarThumb
		}
		return &Profile{Username: username, Nickname: u.Nickname, Avatar: avatar}
	}
	return nil
}

func extractUniversalData(html, username string) *Profile {
	m := universalDataRe.FindStringSubmatch(html)
	if m == nil {
		return nil
	}

	var data struct {
		DefaultScope map[string]json.RawMessage `json:"__DEFAULT_SCOPE__"`
	}
	if err := json.Unmarshal([]byte(m[1]), &data); err != nil {
		return nil
	}

	raw, ok := data.DefaultScope["webapp.user-detail"]
	if !ok {
		return nil
	}

	var detail struct {
		UserInfo struct {
			User userDetail `json:"user"`
		} `json:"userInfo"`
		User userDetail `json:"user"`
	}
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil
	}

	user := detail.UserInfo.User
	if user.Nickname == "" && user.UniqueID == "" {
		user = detail.User
	}
	if user.Nickname == "" && user.UniqueID == "" {
		return nil
	}

	p := &Profile{Username: username, Nickname: user.Nickname, Avatar: user.AvatarLarger}
	if user.UniqueID != "" {
		p.Username = user.UniqueID
	}
	if p.Nickname == "" {
		p.Nickname = p.Username
	}
	if p.Avatar == "" {
		p.Avatar = user.AvatarThumb
	}
	return p
}

type userDetail struct {
	UniqueID     string `json:"uniqueId"`
	Nickname     string `json:"nickname"`
	AvatarLarger string `json:"avatarLarger"`
	AvatarThumb  string `json:"avatarThumb"`
}
