package errco

/*
0xxxxxfxxx: error

0x0000xxxx: minecraft protocol package
0x0001xxxx: program manager package
0x0002xxxx: client connection package
0x0003xxxx: config package
0x0004xxxx: backend package
0x0005xxxx: utility package
0x0006xxxx: main
0x0007xxxx: input package
0x0008xxxx: errco package
0x0009xxxx: servstats package
0x000axxxx: aggregate package
0x000bxxxx: webapi package
*/

// -------------------- log -------------------- //

const (
	// log levels

	LVL_0 LogLvl = 0 // NONE: no log
	LVL_1 LogLvl = 1 // BASE: basic log
	LVL_2 LogLvl = 2 // SERV: backend polling log
	LVL_3 LogLvl = 3 // DEVE: developement log
	LVL_4 LogLvl = 4 // BYTE: connection bytes log

	// log types

	TYPE_INF LogTyp = "info"
	TYPE_SER LogTyp = "serv"
	TYPE_BYT LogTyp = "byte"
	TYPE_WAR LogTyp = "warn"
	TYPE_ERR LogTyp = "error"
)

// ------------------- errors ------------------ //

const (
	ERROR_NIL LogCod = 0xffffffff // no error

	// minecraft protocol package

	ERROR_MALFORMED_VARINT    LogCod = 0x0000f000 // varint is missing or longer than 5 bytes
	ERROR_VARINT_RANGE        LogCod = 0x0000f001 // value can't be encoded as a 32 bit varint
	ERROR_PACKET_LENGTH       LogCod = 0x0000f100 // declared packet length is not acceptable
	ERROR_TRUNCATED_HANDSHAKE LogCod = 0x0000f101 // handshake field read out of packet bounds
	ERROR_UNKNOWN_PACKET      LogCod = 0x0000f102 // packet id not expected in current phase
	ERROR_LEGACY_PROTOCOL     LogCod = 0x0000f103 // pre-netty (0xFE) server list ping

	// program manager package

	ERROR_HEALTH_PROCESS LogCod = 0x0001f000 // error getting mortar process stats
	ERROR_GET_CORES      LogCod = 0x0001f100 // error getting system cores count
	ERROR_GET_CPU_USAGE  LogCod = 0x0001f101 // error getting cpu usage
	ERROR_GET_MEMORY     LogCod = 0x0001f102 // error getting system memory info
	ERROR_GET_UPTIME     LogCod = 0x0001f103 // error getting system uptime

	// client connection package

	ERROR_CLIENT_SOCKET_READ  LogCod = 0x0002f000 // error while reading client socket
	ERROR_CLIENT_SOCKET_WRITE LogCod = 0x0002f001 // error while writing client socket
	ERROR_CONN_EOF            LogCod = 0x0002f002 // client closed the connection
	ERROR_CONN_READ           LogCod = 0x0002f100 // error while reading udp query socket
	ERROR_CONN_WRITE          LogCod = 0x0002f101 // error while writing udp query socket
	ERROR_QUERY_REQUEST       LogCod = 0x0002f102 // query request is malformed
	ERROR_QUERY_CHALLENGE     LogCod = 0x0002f103 // query challenge unknown or expired
	ERROR_JSON_MARSHAL        LogCod = 0x0002f300 // error while exporting struct to json bytes
	ERROR_JSON_UNMARSHAL      LogCod = 0x0002f301 // error while importing struct from json bytes

	// config package

	ERROR_CONFIG_LOAD  LogCod = 0x0003f000 // error while loading config
	ERROR_CONFIG_SAVE  LogCod = 0x0003f001 // error while saving config to file
	ERROR_CONFIG_CHECK LogCod = 0x0003f002 // config values are not valid
	ERROR_CONFIG_ID    LogCod = 0x0003f003 // error while getting instance id
	ERROR_PARSE        LogCod = 0x0003f004 // error while parsing arguments
	ERROR_ICON_LOAD    LogCod = 0x0003f100 // error while loading icon
	ERROR_VERSION_LOAD LogCod = 0x0003f101 // backend version not known

	// opsys package

	ERROR_OS_NOT_SUPPORTED LogCod = 0x0003f200 // OS is not supported

	// backend package

	ERROR_BACKEND_TIMEOUT  LogCod = 0x0004f000 // backend did not answer in time
	ERROR_BACKEND_CONNECT  LogCod = 0x0004f001 // backend unreachable or closed early
	ERROR_BACKEND_PROTOCOL LogCod = 0x0004f002 // backend answered with malformed data

	// utility package

	ERROR_ANALYSIS LogCod = 0x0005f000 // error while analyzing data

	// main

	ERROR_CLIENT_LISTEN LogCod = 0x0006f000 // error while listening for new clients
	ERROR_CLIENT_ACCEPT LogCod = 0x0006f001 // error while accepting new client

	// input package

	ERROR_COMMAND_INPUT     LogCod = 0x0007f000 // general error while reading command input
	ERROR_COMMAND_UNKNOWN   LogCod = 0x0007f001 // command is unknown
	ERROR_INPUT_READ        LogCod = 0x0007f100 // error while reading input
	ERROR_INPUT_UNAVAILABLE LogCod = 0x0007f101 // stdin is not available

	// errco package

	ERROR_COLOR_ENABLE LogCod = 0x0008f000 // error while trying to enable colors on terminal

	// aggregate package

	ERROR_AGGREGATION_FETCH LogCod = 0x000af000 // error while fetching the aggregated status
	ERROR_OFFSET_INVALID    LogCod = 0x000af001 // offset is not a json object

	// webapi package

	ERROR_WEB_LISTEN LogCod = 0x000bf000 // error while serving http api
)
