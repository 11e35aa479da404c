package models

// App is a deployed application zone: the network endpoints of a running
// instance plus the secret key the monitoring proxy presents to it.
type App struct {
	AID      uint   `json:"aid" gorm:"column:aid;primaryKey"`
	Name     string `json:"name" gorm:"type:varchar(255);not null"`
	IP       string `json:"ip" gorm:"column:ip;type:varchar(45)"`
	RestPort int    `json:"rest_port" gorm:"column:rest_port"`
	WSPort   int    `json:"ws_port" gorm:"column:ws_port"`
	ProfPort int    `json:"prof_port" gorm:"column:prof_port"`
	ZID      string `json:"zid" gorm:"column:zid;type:varchar(255);not null"`
	Key      string `json:"key,omitempty" gorm:"column:key;type:varchar(255)"`
	Desc     string `json:"desc" gorm:"column:desc;type:text"`
	Enable   int    `json:"enable" gorm:"default:1"`
	CID      uint   `json:"cid" gorm:"column:cid;index"`
}

func (App) TableName() string {
	return "apps"
}

// AppRecord is the read shape joined with the owning company name.
type AppRecord struct {
	App
	CName string `json:"cname" gorm:"column:cname"`
}

// AppUnit is one executable bundle inside a zone.
type AppUnit struct {
	ID       uint   `json:"id" gorm:"column:id;primaryKey"`
	ZID      string `json:"zid" gorm:"column:zid;type:varchar(255);index"`
	CID      uint   `json:"cid" gorm:"column:cid;index"`
	UName    string `json:"uname" gorm:"column:uname;type:varchar(255)"`
	IfName   string `json:"ifname" gorm:"column:ifname;type:varchar(255)"`
	Path     string `json:"path" gorm:"type:varchar(255)"`
	Enable   int    `json:"enable" gorm:"default:1"`
	PoolSize int    `json:"pool_size" gorm:"column:pool_size;default:1"`
	Name     string `json:"name" gorm:"type:varchar(255)"`
}

func (AppUnit) TableName() string {
	return "app_units"
}

// AppUnitRecord is the read shape joined with the owning company name.
type AppUnitRecord struct {
	AppUnit
	CName string `json:"cname" gorm:"column:cname"`
}
