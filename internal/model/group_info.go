package model

import (
	"time"

	"gorm.io/gorm"
)

// GroupInfo 社区小组
type GroupInfo struct {
	gorm.Model
	Name     string `gorm:"column:name;type:varchar(80);not null;comment:小组名称"`
	Timezone string `gorm:"column:timezone;type:varchar(64);not null;default:UTC;comment:小组默认时区"`
}

func (GroupInfo) TableName() string {
	return "group_info"
}

// Place 小组下的取货点，活动系列挂在取货点上
type Place struct {
	gorm.Model
	GroupId  uint   `gorm:"column:group_id;index;not null;comment:所属小组"`
	Name     string `gorm:"column:name;type:varchar(80);not null;comment:名称"`
	Timezone string `gorm:"column:timezone;type:varchar(64);comment:时区，为空时使用小组时区"`

	Group GroupInfo `gorm:"foreignKey:GroupId"`
}

func (Place) TableName() string {
	return "place"
}

// Location 解析取货点时区，取货点未设置时回落到小组时区
func (p *Place) Location() (*time.Location, error) {
	name := p.Timezone
	if name == "" {
		name = p.Group.Timezone
	}
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
