package domain

var regionNames = map[string]string{
	"cn-hongkong":    "中国香港",
	"ap-southeast-1": "新加坡",
	"us-west-1":      "美国(硅谷)",
	"us-east-1":      "美国(弗吉尼亚)",
	"cn-hangzhou":    "华东1(杭州)",
	"cn-shanghai":    "华东2(上海)",
	"cn-qingdao":     "华北1(青岛)",
	"cn-beijing":     "华北2(北京)",
	"cn-zhangjiakou": "华北3(张家口)",
	"cn-huhehaote":   "华北5(呼和浩特)",
	"cn-wulanchabu":  "华北6(乌兰察布)",
	"cn-shenzhen":    "华南1(深圳)",
	"cn-heyuan":      "华南2(河源)",
	"cn-guangzhou":   "华南3(广州)",
	"cn-chengdu":     "西南1(成都)",
	"ap-northeast-1": "日本(东京)",
}

// RegionName returns the display name for a region id, falling back to
// the id itself.
func RegionName(regionID string) string {
	if name, ok := regionNames[regionID]; ok {
		return name
	}
	return regionID
}
