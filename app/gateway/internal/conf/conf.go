package conf

type Bootstrap struct {
	Server   *Server
	Research *Research
}

type Server struct {
	Http *HTTP
	Grpc *GRPC
}

type HTTP struct {
	Addr    string
	Timeout string
}

type GRPC struct {
	Addr    string
	Timeout string
}

// Research 研究引擎配置，Config 指向 deep_research 的 YAML 配置文件
type Research struct {
	Config string `json:"config"`
	Log    *Log   `json:"log"`
}

type Log struct {
	Level string `json:"level"`
	File  string `json:"file"`
}
