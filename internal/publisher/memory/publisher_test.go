package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notice struct {
	Source string `json:"source"`
}

func (n notice) Attributes() map[string]string {
	return map[string]string{"source": n.Source}
}

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "ingest", notice{Source: "instagram"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "content", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"source":"instagram"}`, string(msgs[0].Data))
	assert.Equal(t, map[string]string{"source": "instagram"}, msgs[0].Attributes)
	assert.Nil(t, msgs[1].Attributes)
	assert.Len(t, pub.ByTopic("ingest"), 1)

	msgs[0].Topic = "modified"
	assert.Equal(t, "ingest", pub.Messages()[0].Topic, "Messages() must return a copy")
}

func TestPublisherRejectsUnencodable(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "ingest", make(chan int))
	assert.Error(t, err)
	assert.Empty(t, New().Messages())
}
