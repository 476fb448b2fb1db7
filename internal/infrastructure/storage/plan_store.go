package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 列表查詢的預設與上限筆數
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// PlanModel 一次規劃結果的紀錄，Document 為完整的 JSON 文件
type PlanModel struct {
	ID            string    `gorm:"type:char(36);primaryKey" json:"id"`
	Source        string    `gorm:"type:text;not null" json:"source"`
	TargetMeals   int       `gorm:"not null" json:"target_meals"`
	Servings      int       `gorm:"not null" json:"servings"`
	MealType      string    `gorm:"type:varchar(50)" json:"meal_type"`
	EstimatedCost float64   `json:"estimated_cost"`
	Resolved      bool      `gorm:"default:false" json:"resolved"`
	Document      string    `gorm:"type:text;not null" json:"-"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// TableName 資料表名稱
func (PlanModel) TableName() string {
	return "plans"
}

// PlanStore 以 SQLite 保存規劃歷史
type PlanStore struct {
	db *gorm.DB
}

// Open 開啟資料庫並建立資料表，dsn 為空時使用記憶體資料庫
func Open(dsn string, debug bool) (*PlanStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}

	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 記憶體資料庫每條連線各自獨立，只能使用單一連線
	if dsn == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&PlanModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	common.LogInfo("規劃歷史資料庫已開啟", zap.String("dsn", dsn))
	return &PlanStore{db: db}, nil
}

// Create 新增紀錄，ID 為空時自動產生
func (s *PlanStore) Create(ctx context.Context, plan *PlanModel) error {
	if plan.ID == "" {
		plan.ID = common.GenerateUUID()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// FindByID 依 ID 取得紀錄
func (s *PlanStore) FindByID(ctx context.Context, id string) (*PlanModel, error) {
	var plan PlanModel
	result := s.db.WithContext(ctx).First(&plan, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("plan %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load plan: %w", result.Error)
	}
	return &plan, nil
}

// List 依建立時間由新到舊列出紀錄，返回本頁資料與總筆數
func (s *PlanStore) List(ctx context.Context, offset, limit int) ([]*PlanModel, int64, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&PlanModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count plans: %w", err)
	}

	var plans []*PlanModel
	err := s.db.WithContext(ctx).
		Omit("document").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&plans).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, total, nil
}

// Ping 檢查資料庫連線
func (s *PlanStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 關閉資料庫連線
func (s *PlanStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
