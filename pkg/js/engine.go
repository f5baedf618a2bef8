package js

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// 用户脚本沙箱。每次计算新建一个vm，执行完即丢弃，
// 规则之间、两次执行之间不共享任何状态。

// 入参通过JSON桥接：把payload字符串parse成对象传给main，
// 再把main的返回值stringify成字符串带回宿主。
const bridgeScript = `function __invoke(s) { return JSON.stringify(main(JSON.parse(s))); }`

func closeStateChan(state chan int) {
	// 超时回调也会读这个通道，没超时取出的是0，超时取出的是2。
	// 后到的一方负责close，避免向已关闭的通道写入
	if <-state == 0 {
		state <- 1
	} else {
		close(state)
	}
}

// RunMain 在全新vm里执行脚本并调用main(data)，payload为JSON字符串，
// 返回main返回值的JSON序列化结果
func RunMain(script, payload string, timeout time.Duration) (out string, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()

	vm := goja.New()

	state := make(chan int, 1)
	state <- 0
	if timeout > 0 {
		time.AfterFunc(timeout, func() {
			if <-state == 0 {
				state <- 2
				vm.Interrupt("execution timeout")
			} else {
				close(state)
			}
		})
	}
	defer closeStateChan(state)

	if _, err = vm.RunString(script); err != nil {
		return "", errors.New("js vm error,err:" + err.Error())
	}
	if _, ok := goja.AssertFunction(vm.Get("main")); !ok {
		return "", errors.New("main is not a function")
	}
	if _, err = vm.RunString(bridgeScript); err != nil {
		return "", errors.New("js vm error,err:" + err.Error())
	}

	f, _ := goja.AssertFunction(vm.Get("__invoke"))
	res, err := f(goja.Undefined(), vm.ToValue(payload))
	if err != nil {
		return "", err
	}
	s, ok := res.Export().(string)
	if !ok {
		return "", fmt.Errorf("script returned non-serializable result: %v", res)
	}
	return s, nil
}
