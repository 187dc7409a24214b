package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径
// 功能：返回缓存文件的完整路径
// 返回：缓存文件路径字符串
// 说明：未指定时使用默认命名规则：{数据库名}.{集合名}.pb
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// IsEmpty 是否未配置任何数据来源
func (p InputPath) IsEmpty() bool {
	return p.File == "" && p.DB == "" && p.Col == ""
}

// Layout 内置单路口网格地图参数
// 功能：未提供地图文件或数据库时，按该参数生成一个十字路口
type Layout struct {
	LanesPerRoad    int     `yaml:"lanes_per_road"`   // 每条道路（单方向）的车道数
	LaneWidth       float64 `yaml:"lane_width"`       // 车道宽度（米）
	SpeedLimit      float64 `yaml:"speed_limit"`      // 道路限速（米/秒）
	MedianSize      float64 `yaml:"median_size"`      // 中央隔离带宽度（米）
	DistanceBetween float64 `yaml:"distance_between"` // 路口中心到地图边界的距离（米）
}

// Input 指定模拟器所有输入数据的配置项
type Input struct {
	URI    string    `yaml:"uri"`              // MongoDB连接字符串
	Map    InputPath `yaml:"map"`              // 地图，为空时使用内置网格地图
	Layout *Layout   `yaml:"layout,omitempty"` // 内置网格地图参数
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔
}

// VehicleSpec 车辆规格
type VehicleSpec struct {
	Name        string  `yaml:"name"`
	Length      float64 `yaml:"length"`       // 车长（米）
	Width       float64 `yaml:"width"`        // 车宽（米）
	MaxVelocity float64 `yaml:"max_velocity"` // 最大速度（米/秒）
	MaxAccel    float64 `yaml:"max_accel"`    // 最大加速度（米/秒^2）
	MaxDecel    float64 `yaml:"max_decel"`    // 最大减速度（正值，米/秒^2）
	Weight      float64 `yaml:"weight"`       // 生成权重
}

// Spawn 车辆生成配置
type Spawn struct {
	// 每个生成点每秒生成车辆的概率
	TrafficLevel float64 `yaml:"traffic_level"`
	// 每个生成点每步最多生成的车辆数，原始行为为1
	MaxSpawnsPerPointPerTick int `yaml:"max_spawns_per_point_per_tick"`
	// 生成点禁止区长度（米），区内有车则本步不生成
	NoVehicleZoneLength float64 `yaml:"no_vehicle_zone_length"`
	// 车辆规格，按权重随机选择
	Vehicles []VehicleSpec `yaml:"vehicles,omitempty"`
}

// Admission 准入控制配置
type Admission struct {
	// 策略：signal（信号灯门控）或grid（纯预约网格）
	Policy string `yaml:"policy"`
	// 为true时对所有剩余提案检查可入性，否则只检查首个提案
	CheckAllProposals bool `yaml:"check_all_proposals,omitempty"`
	// 允许预约的最远未来时间（秒）
	MaxFutureReservation float64 `yaml:"max_future_reservation"`
	// 预约网格参数
	Granularity          float64 `yaml:"granularity"`            // 网格边长（米）
	GridTimeStep         float64 `yaml:"grid_time_step"`         // 网格时间步长（秒）
	StaticBuffer         float64 `yaml:"static_buffer"`          // 车辆外廓静态缓冲（米）
	InternalTimeBuffer   float64 `yaml:"internal_time_buffer"`   // 时间缓冲（秒）
	MinTraversalVelocity float64 `yaml:"min_traversal_velocity"` // 路口内最小通行速度（米/秒）
	// 收发功率（米），距离不超过功率即可送达
	TransmissionPower float64 `yaml:"transmission_power"`
}

// Signal 信号灯配置
type Signal struct {
	// 信控类型：cyclic（固定周期）、max_pressure（最大压力）、file（外部文件驱动）、green（全绿）
	Type string `yaml:"type"`
	// 固定周期相位CSV文件（roads,green,yellow,red），为空时使用地图自带程序或默认程序
	PhaseCSV string `yaml:"phase_csv,omitempty"`
	// 外部相位文件路径（时间戳行 + 12字符信号行）
	PhaseFile string `yaml:"phase_file,omitempty"`
	// 外部相位文件轮询间隔（秒，墙钟时间）
	PollInterval float64 `yaml:"poll_interval,omitempty"`
}

// Driver 驾驶员参数
type Driver struct {
	StopDistanceBeforeIntersection float64 `yaml:"stop_distance_before_intersection"` // 路口前停车距离（米）
	RequestInterval                float64 `yaml:"request_interval"`                  // 请求重发间隔（秒）
	RequestDistance                float64 `yaml:"request_distance"`                  // 开始发送请求的距离（米）
	TransmissionPower              float64 `yaml:"transmission_power"`                // 车辆收发功率（米）
}

// Control 模拟器控制配置
type Control struct {
	Step      ControlStep `yaml:"step"`
	Spawn     Spawn       `yaml:"spawn"`
	Admission Admission   `yaml:"admission"`
	Signal    Signal      `yaml:"signal"`
	Driver    Driver      `yaml:"driver"`
	// VIN注册表周期性重置间隔（秒），0表示不重置
	VinResetInterval float64 `yaml:"vin_reset_interval"`
}

// Output 输出配置
type Output struct {
	// 逐车状态行输出文件（制表符分隔），为空则不输出
	StatusFile string `yaml:"status_file,omitempty"`
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`            // 输入
	Control Control `yaml:"control"`          // 模拟过程控制
	Output  Output  `yaml:"output,omitempty"` // 输出
}
