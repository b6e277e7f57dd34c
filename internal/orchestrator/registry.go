package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "AgentCraft/internal/errors"
)

// Registry 抽象了部署记录的存取接口。写入只发生在事务管理器内部，
// 读取方拿到的永远是副本。
type Registry interface {
	Create(ctx context.Context, record *DeploymentRecord) error
	Get(ctx context.Context, agentID string) (*DeploymentRecord, error)
	Update(ctx context.Context, record *DeploymentRecord) error
	Delete(ctx context.Context, agentID string) error
	List(ctx context.Context) ([]*DeploymentRecord, error)
}

// MemoryRegistry 以内存方式保存部署记录。
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]*DeploymentRecord
}

// NewMemoryRegistry 创建 MemoryRegistry。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]*DeploymentRecord)}
}

// Create 实现 Registry 接口。
func (m *MemoryRegistry) Create(_ context.Context, record *DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record == nil {
		return xerrors.New(xerrors.CodeValidation, "record 不能为空")
	}
	if record.AgentID == "" {
		return xerrors.New(xerrors.CodeValidation, "agent id 不能为空")
	}
	if _, ok := m.records[record.AgentID]; ok {
		return xerrors.New(xerrors.CodeConflict, "agent 记录已存在")
	}
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.LastUpdated = now
	m.records[record.AgentID] = cloneRecord(record)
	return nil
}

// Get 返回部署记录。
func (m *MemoryRegistry) Get(_ context.Context, agentID string) (*DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return cloneRecord(record), nil
}

// Update 覆盖已有记录。
func (m *MemoryRegistry) Update(_ context.Context, record *DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record == nil || record.AgentID == "" {
		return xerrors.New(xerrors.CodeValidation, "record 不能为空")
	}
	existing, ok := m.records[record.AgentID]
	if !ok {
		return ErrAgentNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.LastUpdated = time.Now().Unix()
	m.records[record.AgentID] = cloneRecord(record)
	return nil
}

// Delete 删除记录。
func (m *MemoryRegistry) Delete(_ context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[agentID]; !ok {
		return ErrAgentNotFound
	}
	delete(m.records, agentID)
	return nil
}

// List 返回全部记录，按创建时间降序排列；创建时间相同按 ID 保证稳定顺序。
func (m *MemoryRegistry) List(_ context.Context) ([]*DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]*DeploymentRecord, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, cloneRecord(record))
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt == records[j].CreatedAt {
			return records[i].AgentID < records[j].AgentID
		}
		return records[i].CreatedAt > records[j].CreatedAt
	})
	return records, nil
}

func cloneRecord(record *DeploymentRecord) *DeploymentRecord {
	clone := *record
	clone.CreatedResources = make([]CreatedResource, len(record.CreatedResources))
	copy(clone.CreatedResources, record.CreatedResources)
	return &clone
}

// ensure interface compliance at compile time
var _ Registry = (*MemoryRegistry)(nil)
