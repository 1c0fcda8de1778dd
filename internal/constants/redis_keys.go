package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// SessionModulePrefix 会话模块
	SessionModulePrefix = "session"

	// EntityCorpus 会话语料实体
	EntityCorpus = "corpus"
	// EntityChat 对话记录实体
	EntityChat = "chat"
	// EntityLock 会话写锁
	EntityLock = "lock"

	// KeySessionCorpus 会话语料 (STRING, JSON)
	// 格式: app:session:corpus:{sessionID}
	KeySessionCorpus = AppPrefix + ":" + SessionModulePrefix + ":" + EntityCorpus + ":"

	// KeySessionChat 会话对话记录 (LIST, 每个元素为一条JSON消息)
	// 格式: app:session:chat:{sessionID}
	KeySessionChat = AppPrefix + ":" + SessionModulePrefix + ":" + EntityChat + ":"

	// KeySessionLock 会话写锁 (STRING, SET NX)
	// 格式: app:session:lock:{sessionID}
	KeySessionLock = AppPrefix + ":" + SessionModulePrefix + ":" + EntityLock + ":"
)
