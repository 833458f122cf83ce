package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// maxStoredTasks bounds the persisted task index, matching the orchestrator's
// MAX_REPLAY_TASKS trim policy.
const maxStoredTasks = 200

// TaskStore persists ReplayTask canonical state. The in-process cancel
// handle registry (Engine.workers) is never part of this interface — it
// is cache only and does not survive a restart, matching the Python
// source's explicit "cannot cancel safely after restart" behavior.
type TaskStore interface {
	Save(ctx context.Context, task *Task) error
	Load(ctx context.Context, taskID string) (*Task, error)
	List(ctx context.Context, limit int) ([]*Task, error)
	Trim(ctx context.Context, keep int) error
}

// MemoryTaskStore keeps tasks in an in-process map, used by tests and by
// the orchestrator when the bus backend is in-memory.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string // insertion order, oldest first
}

// NewMemoryTaskStore returns an empty store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*Task)}
}

func (s *MemoryTaskStore) Save(_ context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.TaskID]; !exists {
		s.order = append(s.order, task.TaskID)
	}
	cp := *task
	s.tasks[task.TaskID] = &cp
	return nil
}

func (s *MemoryTaskStore) Load(_ context.Context, taskID string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryTaskStore) List(_ context.Context, limit int) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryTaskStore) Trim(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) <= keep {
		return nil
	}
	remove := s.order[:len(s.order)-keep]
	s.order = s.order[len(s.order)-keep:]
	for _, id := range remove {
		delete(s.tasks, id)
	}
	return nil
}

const (
	taskIndexKey  = "replay:tasks:index"
	taskKeyPrefix = "replay:task:"
)

// RedisTaskStore persists tasks as JSON strings plus a sorted-set index
// keyed by submission time, matching the orchestrator's
// REPLAY_TASK_INDEX_KEY/REPLAY_TASK_KEY_PREFIX scheme.
type RedisTaskStore struct {
	client *redis.Client
}

// NewRedisTaskStore dials redisURL.
func NewRedisTaskStore(redisURL string) (*RedisTaskStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("replay: invalid redis url: %w", err)
	}
	return &RedisTaskStore{client: redis.NewClient(opts)}, nil
}

func taskKey(taskID string) string { return taskKeyPrefix + taskID }

func (s *RedisTaskStore) Save(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("replay: marshal task: %w", err)
	}
	if err := s.client.Set(ctx, taskKey(task.TaskID), payload, 0).Err(); err != nil {
		return fmt.Errorf("replay: save task: %w", err)
	}
	score := float64(task.SubmittedAt.UnixNano()) / 1e9
	if err := s.client.ZAdd(ctx, taskIndexKey, redis.Z{Score: score, Member: task.TaskID}).Err(); err != nil {
		return fmt.Errorf("replay: index task: %w", err)
	}
	return nil
}

func (s *RedisTaskStore) Load(ctx context.Context, taskID string) (*Task, error) {
	raw, err := s.client.Get(ctx, taskKey(taskID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replay: load task: %w", err)
	}
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("replay: unmarshal task: %w", err)
	}
	return &t, nil
}

func (s *RedisTaskStore) List(ctx context.Context, limit int) ([]*Task, error) {
	ids, err := s.client.ZRevRange(ctx, taskIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("replay: list task ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}
	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("replay: mget tasks: %w", err)
	}
	out := make([]*Task, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok || str == "" {
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			continue
		}
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *RedisTaskStore) Trim(ctx context.Context, keep int) error {
	count, err := s.client.ZCard(ctx, taskIndexKey).Result()
	if err != nil {
		return fmt.Errorf("replay: zcard: %w", err)
	}
	if count <= int64(keep) {
		return nil
	}
	toRemove := count - int64(keep)
	ids, err := s.client.ZRange(ctx, taskIndexKey, 0, toRemove-1).Result()
	if err != nil {
		return fmt.Errorf("replay: zrange trim: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.ZRem(ctx, taskIndexKey, toAnySlice(ids)...).Err(); err != nil {
		return fmt.Errorf("replay: zrem trim: %w", err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("replay: del trim: %w", err)
	}
	return nil
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
