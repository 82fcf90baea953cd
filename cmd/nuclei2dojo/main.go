/*
 * @author: sun977
 * @date: 2026.08.17
 * @description: nuclei2dojo 程序入口
 */

package main

func main() {
	Execute()
}
