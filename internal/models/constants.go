package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusChanged   = "changed"
	StatusCompleted = "completed"
)

const (
	// DefaultOuterBatchSize потолок элементов в одном запросе к удаленному хранилищу
	DefaultOuterBatchSize = 200

	// DefaultSubBatchSize максимум элементов в одной атомарной записи
	DefaultSubBatchSize = 20

	// DefaultDedupChunkSize максимум ключей в одном запросе "key in (...)"
	DefaultDedupChunkSize = 10

	// DefaultMaxRetryAttempts количество попыток синхронизации с backoff
	DefaultMaxRetryAttempts = 5

	// DefaultReconnectSettleMS задержка после восстановления связи
	DefaultReconnectSettleMS = 2000

	// DefaultBackoffBaseMS базовая задержка, удваивается с каждой попыткой
	DefaultBackoffBaseMS = 1000

	// DefaultProbeIntervalMS период проверки доступности удаленного хранилища
	DefaultProbeIntervalMS = 5000

	// DefaultRemoteTimeoutMS таймаут запросов к удаленному хранилищу
	DefaultRemoteTimeoutMS = 10000
)

const (
	CycleResultDrained   = "drained"
	CycleResultRemaining = "remaining"
	CycleResultError     = "error"
)
