package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"task-manager/domain"
)

// tableClient is the subset of *aztables.Client used by TableBackend.
type tableClient interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, options *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
}

// maxTransactionActions is the entity group transaction limit of Azure Tables.
const maxTransactionActions = 100

// TableBackend stores one Azure Table entity per task in a single partition.
// The Order column keeps display order.
type TableBackend struct {
	client    tableClient
	partition string
}

type taskEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	DueDate      string `json:"DueDate"`
	Category     string `json:"Category"`
	Order        int    `json:"Order"`
}

// NewTableBackend connects to table in the storage account described by
// connStr. partition names the task list.
func NewTableBackend(connStr, table, partition string) (*TableBackend, error) {
	if table == "" {
		return nil, fmt.Errorf("tasks table name required")
	}
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return newTableBackend(svc.NewClient(table), partition), nil
}

func newTableBackend(client tableClient, partition string) *TableBackend {
	if partition == "" {
		partition = "default"
	}
	return &TableBackend{client: client, partition: partition}
}

// EnsureTable creates the table if it does not exist yet.
func (b *TableBackend) EnsureTable(ctx context.Context) error {
	_, err := b.client.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

func (b *TableBackend) Load(ctx context.Context) ([]domain.Task, error) {
	entities, err := b.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, ErrNoData
	}
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Order < entities[j].Order })

	tasks := make([]domain.Task, 0, len(entities))
	for _, ent := range entities {
		t, err := ent.task()
		if err != nil {
			return nil, fmt.Errorf("%w: row %s: %v", ErrCorruptData, ent.RowKey, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Save upserts every task with its position and deletes rows for tasks no
// longer in the list. The changes are submitted as one entity group
// transaction, so a failed save leaves the table as it was. Lists needing more
// than maxTransactionActions changes are split into several transactions and
// are only atomic per transaction.
func (b *TableBackend) Save(ctx context.Context, tasks []domain.Task) error {
	existing, err := b.list(ctx)
	if err != nil {
		return err
	}

	actions := make([]aztables.TransactionAction, 0, len(tasks)+len(existing))
	keep := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		payload, err := sonic.Marshal(newTaskEntity(b.partition, i, t))
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeInsertReplace,
			Entity:     payload,
		})
		keep[t.ID] = struct{}{}
	}
	for _, ent := range existing {
		if _, ok := keep[ent.RowKey]; ok {
			continue
		}
		payload, err := sonic.Marshal(taskEntity{PartitionKey: b.partition, RowKey: ent.RowKey})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeDelete,
			Entity:     payload,
		})
	}

	for start := 0; start < len(actions); start += maxTransactionActions {
		end := min(start+maxTransactionActions, len(actions))
		if _, err := b.client.SubmitTransaction(ctx, actions[start:end], nil); err != nil {
			return fmt.Errorf("save tasks: %w", err)
		}
	}
	return nil
}

func (b *TableBackend) list(ctx context.Context) ([]taskEntity, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(b.partition, "'", "''") + "'"
	pager := b.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var entities []taskEntity
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := sonic.Unmarshal(raw, &ent); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
			}
			entities = append(entities, ent)
		}
	}
	return entities, nil
}

func newTaskEntity(partition string, order int, t domain.Task) taskEntity {
	return taskEntity{
		PartitionKey: partition,
		RowKey:       t.ID,
		Title:        t.Title,
		Description:  t.Description,
		DueDate:      t.DueDate.String(),
		Category:     t.Category,
		Order:        order,
	}
}

func (e taskEntity) task() (domain.Task, error) {
	due, err := domain.ParseDate(e.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          e.RowKey,
		Title:       e.Title,
		Description: e.Description,
		DueDate:     due,
		Category:    e.Category,
	}, nil
}
