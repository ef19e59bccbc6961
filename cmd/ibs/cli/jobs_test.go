package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/jobs"
)

type captureClient struct {
	tasks []*asynq.Task
}

func (c *captureClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, nil
}

func (s stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func TestTriggerGLIntegrity(t *testing.T) {
	client := &captureClient{}
	c := NewJobsCLI(client, nil)
	info, err := c.Trigger(context.Background(), jobs.TaskGLIntegrity, TriggerArgs{Company: "ACME", Month: "2024-03"})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskGLIntegrity, info.Type)
	require.Len(t, client.tasks, 1)

	var payload jobs.GLIntegrityPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, "ACME", payload.Company)
	require.Equal(t, "2024-03", payload.Month)
}

func TestTriggerPeriodCloseValidates(t *testing.T) {
	client := &captureClient{}
	c := NewJobsCLI(client, nil)
	_, err := c.Trigger(context.Background(), jobs.TaskPeriodClose, TriggerArgs{Company: "ACME", Module: "AR", Month: "2024-03"})
	require.Error(t, err, "actor is required")

	_, err = c.Trigger(context.Background(), jobs.TaskPeriodClose, TriggerArgs{Company: "ACME", Module: "AR", Month: "March", ActorID: "maria"})
	require.Error(t, err)

	_, err = c.Trigger(context.Background(), jobs.TaskPeriodClose, TriggerArgs{Company: "ACME", Module: "AR", Month: "2024-03", ActorID: "maria"})
	require.NoError(t, err)
	require.Len(t, client.tasks, 1)

	_, err = c.Trigger(context.Background(), "bogus", TriggerArgs{})
	require.Error(t, err)
}

func TestInspectQueueAndScheduled(t *testing.T) {
	next := time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC)
	c := NewJobsCLI(nil, stubInspector{
		info:      &asynq.QueueInfo{Pending: 3, Active: 1, Retry: 2},
		scheduled: []*asynq.TaskInfo{{ID: "a", Type: jobs.TaskGLIntegrity, NextProcessAt: next}},
	})
	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "queue=default pending=3 active=1 scheduled=0 retry=2 archived=0", stats.String())

	tasks, err := c.ListScheduled(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []ScheduledTask{{ID: "a", Type: jobs.TaskGLIntegrity, NextAt: next}}, tasks)

	_, err = NewJobsCLI(nil, nil).InspectQueue(context.Background())
	require.Error(t, err)
}
