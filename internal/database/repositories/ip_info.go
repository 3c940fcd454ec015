// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package repositories

import (
	"fmt"
	"time"

	"catchall/internal/database/models"
	"catchall/internal/enrichment"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IPInfoRepository persists geolocation lookups. It satisfies enrichment.Store.
type IPInfoRepository interface {
	Recent(limit int) ([]enrichment.Entry, error)
	Save(ip string, info enrichment.GeoInfo) error
	Touch(ip string) error
}

type ipInfoRepo struct {
	db *gorm.DB
}

func NewIPInfoRepository(db *gorm.DB) IPInfoRepository {
	return &ipInfoRepo{db: db}
}

// Recent returns the most recently seen entries, oldest first, so that adding
// them to an LRU in order leaves the newest one most recently used.
func (r *ipInfoRepo) Recent(limit int) ([]enrichment.Entry, error) {
	var rows []models.IPInfo
	err := r.db.Order("last_seen DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]enrichment.Entry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		var info enrichment.GeoInfo
		if err := json.Unmarshal([]byte(rows[i].Data), &info); err != nil {
			// A corrupt row only costs one extra lookup later.
			continue
		}
		entries = append(entries, enrichment.Entry{IP: rows[i].IPAddress, Info: info})
	}
	return entries, nil
}

func (r *ipInfoRepo) Save(ip string, info enrichment.GeoInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode geo info for %s: %w", ip, err)
	}

	now := time.Now().UTC()
	row := &models.IPInfo{
		IPAddress:   ip,
		Data:        string(data),
		FirstSeen:   now,
		LastSeen:    now,
		LookupCount: 1,
	}

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip_address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"data":         row.Data,
			"last_seen":    now,
			"updated_at":   now,
			"lookup_count": gorm.Expr("lookup_count + 1"),
		}),
	}).Create(row).Error
}

// Touch refreshes last_seen for a cache hit so retention keeps the row.
func (r *ipInfoRepo) Touch(ip string) error {
	now := time.Now().UTC()
	return r.db.Model(&models.IPInfo{}).
		Where("ip_address = ?", ip).
		Updates(map[string]interface{}{
			"last_seen":    now,
			"updated_at":   now,
			"lookup_count": gorm.Expr("lookup_count + 1"),
		}).Error
}
