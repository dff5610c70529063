package lumetric

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// PromptVersion is a specific version of a prompt stored in the prompt library.
type PromptVersion struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Version   int            `json:"version"`
	Template  string         `json:"template"`
	Config    map[string]any `json:"config"`
	Labels    []string       `json:"labels"`
	CreatedAt string         `json:"createdAt"`
}

// Compile renders the prompt template with the given variables. Both
// {{var}} and {var} placeholders are supported.
func (p *PromptVersion) Compile(variables map[string]any) string {
	result := p.Template

	for key, value := range variables {
		result = strings.ReplaceAll(result, fmt.Sprintf("{{%s}}", key), fmt.Sprint(value))
		result = strings.ReplaceAll(result, fmt.Sprintf("{%s}", key), fmt.Sprint(value))
	}

	return result
}

// ChatMessage is a single role-tagged message in a chat prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

var chatRoleRe = regexp.MustCompile(`(?i)^(system|user|assistant|function):\s*(.*)$`)

// CompileChat renders the prompt and splits it into chat messages on
// "role:" prefixed lines.
func (p *PromptVersion) CompileChat(variables map[string]any) []ChatMessage {
	compiled := p.Compile(variables)
	messages := []ChatMessage{}

	var currentRole string
	var currentContent []string

	flush := func() {
		if currentRole != "" && len(currentContent) > 0 {
			messages = append(messages, ChatMessage{
				Role:    strings.ToLower(currentRole),
				Content: strings.TrimSpace(strings.Join(currentContent, "\n")),
			})
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(compiled), "\n") {
		if matches := chatRoleRe.FindStringSubmatch(line); matches != nil {
			flush()
			currentRole = matches[1]
			currentContent = currentContent[:0]
			if matches[2] != "" {
				currentContent = append(currentContent, matches[2])
			}
			continue
		}
		currentContent = append(currentContent, line)
	}
	flush()

	return messages
}

var (
	doubleBraceRe = regexp.MustCompile(`\{\{(\w+)\}\}`)
	singleBraceRe = regexp.MustCompile(`\{(\w+)\}`)
)

// Variables extracts the placeholder names used in the template.
func (p *PromptVersion) Variables() []string {
	set := make(map[string]struct{})

	for _, match := range doubleBraceRe.FindAllStringSubmatch(p.Template, -1) {
		set[match[1]] = struct{}{}
	}
	for _, match := range singleBraceRe.FindAllStringSubmatch(p.Template, -1) {
		set[match[1]] = struct{}{}
	}

	variables := make([]string, 0, len(set))
	for v := range set {
		variables = append(variables, v)
	}
	return variables
}

// promptCache holds fetched prompts with a TTL, one per client.
type promptCache struct {
	mu      sync.RWMutex
	entries map[string]cachedPrompt
	ttl     time.Duration
}

type cachedPrompt struct {
	prompt   *PromptVersion
	cachedAt time.Time
}

func newPromptCache() *promptCache {
	return &promptCache{
		entries: make(map[string]cachedPrompt),
		ttl:     time.Minute,
	}
}

// GetPromptOptions holds options for fetching a prompt.
type GetPromptOptions struct {
	Name     string
	Version  *int
	Label    string
	Fallback string
	CacheTTL time.Duration
}

// GetPrompt fetches a prompt version from the prompt library, consulting a
// per-client TTL cache first. When the backend is unreachable and a
// Fallback template is provided, a fallback version is returned instead of
// an error.
func (c *Client) GetPrompt(ctx context.Context, opts GetPromptOptions) (*PromptVersion, error) {
	cacheKey := promptCacheKey(opts)
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = c.prompts.ttl
	}

	c.prompts.mu.RLock()
	if cached, ok := c.prompts.entries[cacheKey]; ok {
		if c.clock.Now().Sub(cached.cachedAt) < ttl {
			c.prompts.mu.RUnlock()
			return cached.prompt, nil
		}
	}
	c.prompts.mu.RUnlock()

	params := url.Values{}
	params.Set("name", opts.Name)
	if opts.Version != nil {
		params.Set("version", fmt.Sprintf("%d", *opts.Version))
	}
	if opts.Label != "" {
		params.Set("label", opts.Label)
	}

	var prompt PromptVersion
	status, err := c.request(ctx, http.MethodGet, "/api/public/prompts?"+params.Encode(), nil, &prompt)
	if err != nil || status != http.StatusOK {
		return promptFallback(opts)
	}

	c.prompts.mu.Lock()
	c.prompts.entries[cacheKey] = cachedPrompt{
		prompt:   &prompt,
		cachedAt: c.clock.Now(),
	}
	c.prompts.mu.Unlock()

	return &prompt, nil
}

// InvalidatePrompt drops cached versions of the named prompt.
func (c *Client) InvalidatePrompt(name string) {
	c.prompts.mu.Lock()
	defer c.prompts.mu.Unlock()

	for key := range c.prompts.entries {
		if strings.HasPrefix(key, name) {
			delete(c.prompts.entries, key)
		}
	}
}

func promptCacheKey(opts GetPromptOptions) string {
	parts := []string{opts.Name}
	if opts.Version != nil {
		parts = append(parts, fmt.Sprintf("v%d", *opts.Version))
	}
	if opts.Label != "" {
		parts = append(parts, "l:"+opts.Label)
	}
	return strings.Join(parts, ":")
}

func promptFallback(opts GetPromptOptions) (*PromptVersion, error) {
	if opts.Fallback != "" {
		return &PromptVersion{
			ID:       "fallback",
			Name:     opts.Name,
			Version:  0,
			Template: opts.Fallback,
			Labels:   []string{"fallback"},
		}, nil
	}
	return nil, fmt.Errorf("prompt %q not found and no fallback provided", opts.Name)
}
