package schema

import (
	"fmt"
	"strings"
)

// Key 逻辑数据集标识
type Key string

const (
	Calls Key = "CALLS"
	Leads Key = "LEADS"
	Init  Key = "INIT"
	Disc  Key = "DISC"
	NCL   Key = "NCL"
)

// Policy 上传合并策略
type Policy int

const (
	PolicyPeriod       Policy = iota // 按 Month-Year 替换
	PolicyRange                      // 按日期区间替换
	PolicyCompositeKey               // 按 Email|Matter ID|Stage 替换
)

func (p Policy) String() string {
	switch p {
	case PolicyPeriod:
		return "period"
	case PolicyRange:
		return "range"
	case PolicyCompositeKey:
		return "composite_key"
	default:
		return "unknown"
	}
}

// 批次元数据列
const (
	ColBatchID         = "__batch_id"
	ColUploadDate      = "__upload_date"
	ColBatchStart      = "__batch_start"
	ColBatchEnd        = "__batch_end"
	ColUploadTimestamp = "__upload_timestamp"
)

// MetaColumns 批次元数据列（顺序即写入顺序）
var MetaColumns = []string{ColBatchID, ColUploadDate, ColBatchStart, ColBatchEnd, ColUploadTimestamp}

// 通话报表列
const (
	ColCategory      = "Category"
	ColName          = "Name"
	ColTotalCalls    = "Total Calls"
	ColCompleted     = "Completed Calls"
	ColOutgoing      = "Outgoing"
	ColReceived      = "Received"
	ColVoicemail     = "Forwarded to Voicemail"
	ColAnsweredOther = "Answered by Other"
	ColMissed        = "Missed"
	ColAvgCallTime   = "Avg Call Time"
	ColTotalCallTime = "Total Call Time"
	ColTotalHoldTime = "Total Hold Time"
	ColMonthYear     = "Month-Year"

	ColAvgSec   = "__avg_sec"
	ColHoldSec  = "__hold_sec"
	ColTotalSec = "__total_sec"
)

// 转化相关列
const (
	ColFirstName        = "First Name"
	ColLastName         = "Last Name"
	ColEmail            = "Email"
	ColMatterID         = "Matter ID"
	ColStage            = "Stage"
	ColStatus           = "Status"
	ColSubStatus        = "Sub Status"
	ColReason           = "Reason for Rescheduling"
	ColLeadAttorney     = "Lead Attorney"
	ColIntakeSpecialist = "Assigned Intake Specialist"
	ColPracticeArea     = "Practice Area"
	ColICDate           = "Initial Consultation With Pji Law"
	ColICRescheduled    = "Initial Consultation Rescheduled With Pji Law"
	ColDMDate           = "Discovery Meeting With Pji Law"
	ColDMRescheduled    = "Discovery Meeting Rescheduled With Pji Law"
	ColNCLDate          = "Date we had BOTH the signed CLA and full payment"
	ColRetainedFlag     = "Retained With Consult (Y/N)"
	ColPrimaryIntake    = "Primary Intake?"
)

// RequiredCallColumns 通话上传在表头归一化后必须具备的列
var RequiredCallColumns = []string{
	ColName, ColTotalCalls, ColCompleted, ColOutgoing, ColReceived,
	ColVoicemail, ColAnsweredOther, ColMissed,
	ColAvgCallTime, ColTotalCallTime, ColTotalHoldTime,
}

// CallCountColumns 需要整数化的计数列
var CallCountColumns = []string{
	ColTotalCalls, ColCompleted, ColOutgoing, ColReceived,
	ColVoicemail, ColAnsweredOther, ColMissed,
}

// CallOutputColumns 归一化输出列顺序
var CallOutputColumns = []string{
	ColCategory, ColName, ColTotalCalls, ColCompleted, ColOutgoing, ColReceived,
	ColVoicemail, ColAnsweredOther, ColMissed,
	ColAvgCallTime, ColTotalCallTime, ColTotalHoldTime, ColMonthYear,
	ColAvgSec, ColHoldSec, ColTotalSec,
}

// TableSpec 逻辑表定义
type TableSpec struct {
	Key       Key      `json:"key"`
	Label     string   `json:"label"`
	Name      string   `json:"name"`
	Fallbacks []string `json:"fallbacks"`
	// Headers 空表时写入的表头（不含批次元数据列）
	Headers []string `json:"headers"`
	// DateColumn 区间替换与区间过滤所用日期列，CALLS/LEADS 为空
	DateColumn string `json:"dateColumn,omitempty"`
	Policy     Policy `json:"-"`
}

// Names 主表名 + 兼容名
func (s TableSpec) Names() []string {
	out := make([]string, 0, 1+len(s.Fallbacks))
	out = append(out, s.Name)
	out = append(out, s.Fallbacks...)
	return out
}

// EmptyHeaders 空表表头（含批次元数据列）
func (s TableSpec) EmptyHeaders() []string {
	out := make([]string, 0, len(s.Headers)+len(MetaColumns))
	out = append(out, s.Headers...)
	out = append(out, MetaColumns...)
	return out
}

var order = []Key{Calls, Leads, Init, Disc, NCL}

var registry = map[Key]TableSpec{
	Calls: {
		Key:       Calls,
		Label:     "Calls",
		Name:      "Call_Report_Master",
		Fallbacks: []string{"Zoom_Calls"},
		Headers: []string{
			ColName, ColTotalCalls, ColCompleted, ColOutgoing, ColReceived,
			ColVoicemail, ColAnsweredOther, ColMissed,
			ColAvgCallTime, ColTotalCallTime, ColTotalHoldTime, ColMonthYear,
		},
		Policy: PolicyPeriod,
	},
	Leads: {
		Key:       Leads,
		Label:     "Leads/PNCs",
		Name:      "Leads_PNCs_Master",
		Fallbacks: []string{"Leads_PNCs"},
		Headers: []string{
			ColFirstName, ColLastName, ColEmail, ColStage, ColIntakeSpecialist,
			ColStatus, ColSubStatus, ColMatterID, ColReason,
			"No Follow Up (Reason)", "Refer Out?", ColLeadAttorney,
			ColICDate, ColICRescheduled, ColDMRescheduled, ColDMDate,
			ColPracticeArea,
		},
		Policy: PolicyCompositeKey,
	},
	Init: {
		Key:       Init,
		Label:     "Initial Consultation",
		Name:      "Initial_Consultation_Master",
		Fallbacks: []string{"Initial_Consultation"},
		Headers: []string{
			ColFirstName, ColLastName, ColEmail, ColMatterID, ColIntakeSpecialist,
			ColSubStatus, ColReason, ColICDate, ColICRescheduled,
			ColPracticeArea, ColLeadAttorney, ColStatus, "Reason",
		},
		DateColumn: ColICDate,
		Policy:     PolicyRange,
	},
	Disc: {
		Key:       Disc,
		Label:     "Discovery Meeting",
		Name:      "Discovery_Meeting_Master",
		Fallbacks: []string{"Discovery_Meeting"},
		Headers: []string{
			ColFirstName, ColLastName, ColEmail, ColMatterID, ColIntakeSpecialist,
			ColSubStatus, ColReason, ColDMDate, ColDMRescheduled,
			ColPracticeArea, ColLeadAttorney, ColStatus, "Reason",
		},
		DateColumn: ColDMDate,
		Policy:     PolicyRange,
	},
	NCL: {
		Key:       NCL,
		Label:     "New Client List",
		Name:      "New_Client_List_Master",
		Fallbacks: []string{"New_Clients", "New Client List"},
		Headers: []string{
			ColFirstName, ColLastName, ColEmail, ColMatterID, ColPracticeArea,
			ColICDate, ColNCLDate, ColLeadAttorney, ColPrimaryIntake,
		},
		DateColumn: ColNCLDate,
		Policy:     PolicyRange,
	},
}

// Keys 全部逻辑表，固定顺序
func Keys() []Key {
	out := make([]Key, len(order))
	copy(out, order)
	return out
}

// Lookup 查询表定义
func Lookup(key Key) (TableSpec, bool) {
	spec, ok := registry[key]
	return spec, ok
}

// MustLookup 查询表定义，未知 key 直接 panic（仅用于常量 key）
func MustLookup(key Key) TableSpec {
	spec, ok := registry[key]
	if !ok {
		panic(fmt.Sprintf("schema: unknown table key %q", key))
	}
	return spec
}

// ParseKey 解析逻辑 key，兼容小写与物理表名
func ParseKey(s string) (Key, error) {
	v := strings.TrimSpace(s)
	if spec, ok := registry[Key(strings.ToUpper(v))]; ok {
		return spec.Key, nil
	}
	for _, k := range order {
		for _, name := range registry[k].Names() {
			if strings.EqualFold(name, v) {
				return k, nil
			}
		}
	}
	return "", fmt.Errorf("unknown table %q", s)
}
