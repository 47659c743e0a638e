package models

import "sort"

// Catalog 运营自定义的优先级、阶段与类别扩展
type Catalog struct {
	Tiers      []string `yaml:"tiers" json:"tiers"`
	Stages     []Stage  `yaml:"stages" json:"stages"`
	Categories []string `yaml:"categories" json:"categories"`
}

// DefaultCatalog 无自定义扩展的目录
func DefaultCatalog() *Catalog {
	return &Catalog{}
}

// TierRank 返回优先级排名，数值越小越靠前。
// 内置优先级在前，自定义优先级按目录顺序，目录外的优先级排在最后。
func (c *Catalog) TierRank(tier string) int {
	for i, t := range BuiltinTiers {
		if t == tier {
			return i
		}
	}
	if c != nil {
		for i, t := range c.Tiers {
			if t == tier {
				return len(BuiltinTiers) + i
			}
		}
		return len(BuiltinTiers) + len(c.Tiers)
	}
	return len(BuiltinTiers)
}

// DefaultTier 新线索未指定优先级时使用最低的内置优先级
func (c *Catalog) DefaultTier() string {
	return BuiltinTiers[len(BuiltinTiers)-1]
}

// AllStages 内置阶段加自定义阶段
func (c *Catalog) AllStages() []Stage {
	stages := append([]Stage{}, BuiltinStages...)
	if c == nil {
		return stages
	}
	for _, s := range c.Stages {
		if !s.IsBuiltin() {
			stages = append(stages, s)
		}
	}
	return stages
}

// AllCategories 内置类别加自定义类别，自定义部分按字母排序
func (c *Catalog) AllCategories() []string {
	categories := append([]string{}, BuiltinCategories...)
	if c == nil {
		return categories
	}
	custom := append([]string{}, c.Categories...)
	sort.Strings(custom)
	for _, cat := range custom {
		if !containsString(categories, cat) {
			categories = append(categories, cat)
		}
	}
	return categories
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
