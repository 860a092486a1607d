package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	got tasks.IngestTask
}

func (p *recordingProcessor) Process(_ context.Context, t tasks.IngestTask) error {
	p.got = t
	return nil
}

func TestNewIngestTask(t *testing.T) {
	task, err := NewIngestTask(tasks.IngestTask{DocumentID: 3, OwnerID: 1, FileName: "a.pdf"},
		config.AsynqConfig{Queue: "critical", Timeout: time.Minute}, 2)
	require.NoError(t, err)
	assert.Equal(t, TypeIngestDocument, task.Type())

	var decoded tasks.IngestTask
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.EqualValues(t, 3, decoded.DocumentID)
}

func TestHandleIngestTask(t *testing.T) {
	p := &recordingProcessor{}
	h := HandleIngestTask(p)

	payload, _ := json.Marshal(tasks.IngestTask{DocumentID: 11, ObjectName: "documents/1/x.pdf"})
	require.NoError(t, h(context.Background(), asynq.NewTask(TypeIngestDocument, payload)))
	assert.EqualValues(t, 11, p.got.DocumentID)

	err := h(context.Background(), asynq.NewTask(TypeIngestDocument, []byte("{bad")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
