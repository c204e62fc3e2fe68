package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/stocksync-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/demo/topics/ss-inventory", resourceName("demo", "topics", " ss-inventory "))
	assert.Equal(t, "projects/other/topics/x", resourceName("demo", "topics", "projects/other/topics/x"))
	assert.Empty(t, resourceName("", "topics", "x"))
	assert.Empty(t, resourceName("demo", "topics", "  "))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{InventoryTopic: "inv", OrdersTopic: " ", SyncTopic: "sync"})
	assert.Equal(t, []string{"inv", "sync"}, names)
}
