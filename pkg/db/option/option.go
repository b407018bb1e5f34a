package option

import "gorm.io/gorm"

// QueryOption mutates a gorm query before execution.
type QueryOption func(*gorm.DB) *gorm.DB

func WithLimit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit)
	}
}

func WithOffset(offset int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if offset <= 0 {
			return tx
		}
		return tx.Offset(offset)
	}
}

func WithOrder(order string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Order(order)
	}
}

func WithPreload(association string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Preload(association)
	}
}

func Apply(tx *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		tx = opt(tx)
	}
	return tx
}
