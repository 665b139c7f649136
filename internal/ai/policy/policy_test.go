package policy

import (
	"strings"
	"testing"

	"aibbs/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestContainsForbidden(t *testing.T) {
	assert.True(t, ContainsForbidden("please DELETE this"))
	assert.True(t, ContainsForbidden("ban him"))
	assert.True(t, ContainsForbidden("i'd kill for a bowl of ramen."))
	assert.True(t, ContainsForbidden("(ban)"))
	assert.False(t, ContainsForbidden("nice thread"))
	assert.False(t, ContainsForbidden("that takes real skill"))
	assert.False(t, ContainsForbidden("Banana for scale"))
	assert.False(t, ContainsForbidden("the post was deleted yesterday"))
}

func TestModerationPromptExcerpt(t *testing.T) {
	body := strings.Repeat("x", 1500)
	p := ModerationPrompt(body)
	assert.Contains(t, p, strings.Repeat("x", 1000))
	assert.NotContains(t, p, strings.Repeat("x", 1001))
	assert.Contains(t, p, `"flag": bool`)
}

func TestEngagementPromptLines(t *testing.T) {
	posts := []models.Post{
		{ID: 3, Content: "short"},
		{ID: 4, Content: strings.Repeat("y", 300)},
	}
	p := EngagementPrompt("Title", posts)
	assert.Contains(t, p, "Thread Title: Title")
	assert.Contains(t, p, "3: short")
	assert.Contains(t, p, "4: "+strings.Repeat("y", 200)+"\n")
	assert.NotContains(t, p, strings.Repeat("y", 201))
	assert.Contains(t, p, "should_reply")
}
