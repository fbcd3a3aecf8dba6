package aws

// Nominal vCPU and memory figures for common instance types. Unknown types
// report 1 and 1.
var instanceSizes = map[string]struct{ cpu, memoryGB int }{
	"t3.micro":   {2, 1},
	"t3.small":   {2, 2},
	"t3.medium":  {2, 4},
	"t3.large":   {2, 8},
	"t3.xlarge":  {4, 16},
	"t3.2xlarge": {8, 32},
	"m5.large":   {2, 8},
	"m5.xlarge":  {4, 16},
	"m5.2xlarge": {8, 32},
	"c5.large":   {2, 4},
	"c5.xlarge":  {4, 8},
	"c5.2xlarge": {8, 16},
}

func instanceCPUCores(instanceType string) int {
	if size, ok := instanceSizes[instanceType]; ok {
		return size.cpu
	}
	return 1
}

func instanceMemoryGB(instanceType string) int {
	if size, ok := instanceSizes[instanceType]; ok {
		return size.memoryGB
	}
	return 1
}
