package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/jmylchreest/hlsgate/internal/urlutil"
	"github.com/jmylchreest/hlsgate/pkg/m3u"
)

// idPattern constrains channel IDs to filesystem and URL safe names.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// Channel describes one upstream DASH channel in the lineup.
type Channel struct {
	ID   string `mapstructure:"id" json:"id"`
	Name string `mapstructure:"name" json:"name"`
	URL  string `mapstructure:"url" json:"url"`

	// Key is the content key as a 32-char hex string; empty means the
	// channel is served in the clear upstream. KID is optional metadata
	// carried for playlist export; decryption needs only the key.
	KID string `mapstructure:"kid" json:"-"`
	Key string `mapstructure:"key" json:"-"`

	// PreferredVideoIndex and PreferredAudioIndex override the global
	// representation selection indices. Nil means use the configured default.
	PreferredVideoIndex *int `mapstructure:"preferred_video_index" json:"preferred_video_index,omitempty"`
	PreferredAudioIndex *int `mapstructure:"preferred_audio_index" json:"preferred_audio_index,omitempty"`

	Logo  string `mapstructure:"logo" json:"logo,omitempty"`
	Group string `mapstructure:"group" json:"group,omitempty"`
}

// Encrypted reports whether the channel carries a ClearKey pair.
func (c *Channel) Encrypted() bool {
	return c.KID != "" || c.Key != ""
}

// KeyBytes returns the decoded ClearKey key.
func (c *Channel) KeyBytes() ([]byte, error) {
	return hex.DecodeString(c.Key)
}

// KIDBytes returns the decoded key ID.
func (c *Channel) KIDBytes() ([]byte, error) {
	return hex.DecodeString(c.KID)
}

// Validate checks a single channel definition.
func (c *Channel) Validate() error {
	if !idPattern.MatchString(c.ID) {
		return fmt.Errorf("channel id %q is invalid", c.ID)
	}
	if c.Name == "" {
		return fmt.Errorf("channel %s: name is required", c.ID)
	}
	if c.URL == "" {
		return fmt.Errorf("channel %s: url is required", c.ID)
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("channel %s: url must be http or https", c.ID)
	}
	if c.Encrypted() {
		if len(c.Key) != 32 || !isHex(c.Key) {
			return fmt.Errorf("channel %s: key must be 32 hex characters", c.ID)
		}
		// The kid is optional; neither decrypt path needs it.
		if c.KID != "" && (len(c.KID) != 32 || !isHex(c.KID)) {
			return fmt.Errorf("channel %s: kid must be 32 hex characters", c.ID)
		}
	}
	if c.PreferredVideoIndex != nil && *c.PreferredVideoIndex < 0 {
		return fmt.Errorf("channel %s: preferred_video_index must not be negative", c.ID)
	}
	if c.PreferredAudioIndex != nil && *c.PreferredAudioIndex < 0 {
		return fmt.Errorf("channel %s: preferred_audio_index must not be negative", c.ID)
	}
	return nil
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// User is one row of the credential file.
type User struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Lineup holds the channels and users loaded from the lineup files.
// A Lineup is immutable once built; reloads produce a new value.
type Lineup struct {
	channels map[string]*Channel
	order    []string
	users    map[string]User
}

// Channels returns all channels in file order.
func (l *Lineup) Channels() []*Channel {
	out := make([]*Channel, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.channels[id])
	}
	return out
}

// Channel looks up a channel by ID.
func (l *Lineup) Channel(id string) (*Channel, bool) {
	c, ok := l.channels[id]
	return c, ok
}

// ChannelIDs returns all channel IDs in file order.
func (l *Lineup) ChannelIDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// User looks up a user by username.
func (l *Lineup) User(username string) (User, bool) {
	u, ok := l.users[username]
	return u, ok
}

// UserCount returns the number of configured users.
func (l *Lineup) UserCount() int {
	return len(l.users)
}

// channelsFile mirrors channels.toml.
type channelsFile struct {
	Channels []Channel `mapstructure:"channels"`
}

// usersFile mirrors users.toml.
type usersFile struct {
	Users []User `mapstructure:"users"`
}

// LoadLineup reads the channel and user lineup from the configured files.
// When a playlist file is configured its clearkey entries are merged in
// after the TOML channels; TOML definitions win on ID collision.
func LoadLineup(cfg LineupConfig) (*Lineup, error) {
	lineup := &Lineup{
		channels: make(map[string]*Channel),
		users:    make(map[string]User),
	}

	var cf channelsFile
	if err := readTOML(cfg.ChannelsFile, &cf); err != nil {
		return nil, fmt.Errorf("loading channels: %w", err)
	}
	for i := range cf.Channels {
		ch := cf.Channels[i]
		if err := ch.Validate(); err != nil {
			return nil, fmt.Errorf("loading channels: %w", err)
		}
		if _, exists := lineup.channels[ch.ID]; exists {
			return nil, fmt.Errorf("loading channels: duplicate channel id %q", ch.ID)
		}
		lineup.channels[ch.ID] = &ch
		lineup.order = append(lineup.order, ch.ID)
	}

	var uf usersFile
	if err := readTOML(cfg.UsersFile, &uf); err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	for _, u := range uf.Users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("loading users: username and password are required")
		}
		if _, exists := lineup.users[u.Username]; exists {
			return nil, fmt.Errorf("loading users: duplicate username %q", u.Username)
		}
		lineup.users[u.Username] = u
	}

	if cfg.PlaylistFile != "" {
		if err := lineup.importPlaylist(cfg.PlaylistFile); err != nil {
			return nil, fmt.Errorf("importing playlist: %w", err)
		}
	}

	return lineup, nil
}

// readTOML loads a TOML file into out using a dedicated viper instance.
func readTOML(path string, out any) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// importPlaylist merges clearkey entries from an M3U playlist. The source
// may be a local path, an http(s) URL, or a file:// URL.
func (l *Lineup) importPlaylist(source string) error {
	entries, err := loadPlaylistEntries(source)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		ch := channelFromEntry(entry)
		if ch == nil {
			continue
		}
		if err := ch.Validate(); err != nil {
			return err
		}
		if _, exists := l.channels[ch.ID]; exists {
			continue
		}
		l.channels[ch.ID] = ch
		l.order = append(l.order, ch.ID)
	}

	return nil
}

// loadPlaylistEntries reads playlist entries from a local path or a URL.
// Compression (gzip, bzip2, xz) is detected from the stream either way.
func loadPlaylistEntries(source string) ([]*m3u.Entry, error) {
	if !urlutil.IsSupportedURL(source) {
		return m3u.ParseFile(source)
	}

	if err := urlutil.ValidateURL(source); err != nil {
		return nil, err
	}

	fetcher := urlutil.NewDefaultResourceFetcher()
	rc, err := fetcher.Fetch(context.Background(), source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var entries []*m3u.Entry
	p := &m3u.Parser{
		OnEntry: func(entry *m3u.Entry) error {
			entries = append(entries, entry)
			return nil
		},
	}
	if err := p.ParseCompressed(rc); err != nil {
		return nil, err
	}
	return entries, nil
}

// channelFromEntry converts an M3U entry to a Channel, or nil when the
// entry carries no usable stream.
func channelFromEntry(entry *m3u.Entry) *Channel {
	if entry.URL == "" {
		return nil
	}

	id := entry.TvgID
	if id == "" {
		id = slugify(entry.Title)
	}
	if id == "" {
		return nil
	}

	name := entry.Title
	if name == "" {
		name = entry.TvgName
	}
	if name == "" {
		name = id
	}

	ch := &Channel{
		ID:    id,
		Name:  name,
		URL:   entry.URL,
		Logo:  entry.TvgLogo,
		Group: entry.GroupTitle,
	}
	if kid, key, ok := entry.ClearKey(); ok {
		ch.KID = strings.ToLower(kid)
		ch.Key = strings.ToLower(key)
	}
	return ch
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a channel ID from a display title.
func slugify(title string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

// LineupStore holds the active lineup and supports atomic replacement
// when lineup files are reloaded.
type LineupStore struct {
	current atomic.Pointer[Lineup]
}

// NewLineupStore creates a store seeded with the given lineup.
func NewLineupStore(l *Lineup) *LineupStore {
	s := &LineupStore{}
	s.current.Store(l)
	return s
}

// Current returns the active lineup.
func (s *LineupStore) Current() *Lineup {
	return s.current.Load()
}

// Replace swaps in a new lineup.
func (s *LineupStore) Replace(l *Lineup) {
	s.current.Store(l)
}
